// Package bus abstracts the message transport between services. The contract
// is at-least-once delivery, ordered per partition key; handlers must absorb
// duplicates themselves.
package bus

import "context"

// Message is one delivery from a topic.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Handler processes a single delivery. A nil return commits the message; an
// error leaves it uncommitted so the transport can redeliver it. Handlers are
// re-invoked for the same message after failures and must be idempotent.
type Handler func(ctx context.Context, msg Message) error

// Publisher publishes JSON-encoded payloads to one topic. The key selects the
// partition: all messages sharing a key are delivered in publish order.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}
