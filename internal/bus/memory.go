package bus

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/commerce-saga/internal/event"
)

// MemoryBroker is an in-process transport for tests and local runs. Dispatch
// is synchronous, so publish order equals delivery order for every key, and a
// handler error triggers immediate redelivery up to maxAttempts. That is the
// same at-least-once, per-key-ordered contract the Kafka transport provides.
type MemoryBroker struct {
	mu          sync.Mutex
	subscribers map[string][]Handler
	maxAttempts int
}

// NewMemoryBroker creates a broker that retries failed deliveries up to
// maxAttempts times before dropping the message.
func NewMemoryBroker(maxAttempts int) *MemoryBroker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &MemoryBroker{
		subscribers: make(map[string][]Handler),
		maxAttempts: maxAttempts,
	}
}

// Subscribe registers a handler for a topic. Each registered handler models
// one consumer group: every group receives every message.
func (b *MemoryBroker) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Publisher returns a Publisher bound to one topic.
func (b *MemoryBroker) Publisher(topic string) Publisher {
	return &memoryPublisher{broker: b, topic: topic}
}

func (b *MemoryBroker) dispatch(ctx context.Context, msg Message) error {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subscribers[msg.Topic]))
	copy(handlers, b.subscribers[msg.Topic])
	b.mu.Unlock()

	for _, h := range handlers {
		var err error
		// Retries run back to back with no backoff, unlike the Kafka
		// transport; delivery semantics match, timing does not.
		for attempt := 0; attempt < b.maxAttempts; attempt++ {
			if err = h(ctx, msg); err == nil {
				break
			}
		}
		if err != nil {
			return errors.Wrapf(err, "deliver to %s after %d attempts", msg.Topic, b.maxAttempts)
		}
	}
	return nil
}

var _ Publisher = (*memoryPublisher)(nil)

type memoryPublisher struct {
	broker *MemoryBroker
	topic  string
}

func (p *memoryPublisher) Publish(ctx context.Context, key string, payload any) error {
	data, err := event.Encode(payload)
	if err != nil {
		return err
	}
	return p.broker.dispatch(ctx, Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
	})
}

func (p *memoryPublisher) Close() error { return nil }
