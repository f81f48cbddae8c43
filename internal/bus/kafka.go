package bus

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/commerce-saga/internal/event"
)

var tracer = otel.Tracer("github.com/xenking/commerce-saga/internal/bus")

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes to a single Kafka topic. The hash balancer routes
// by message key, which gives per-key ordering across partitions.
type KafkaPublisher struct {
	topic  string
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given topic. Writes are
// synchronous and require acks from all in-sync replicas.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

// Publish encodes the payload as JSON and writes it under the given key.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload any) error {
	data, err := event.Encode(payload)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, p.topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.kafka.message.key", key),
		),
	)
	defer span.End()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "write to %s", p.topic)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer runs a consumer-group read loop on one topic.
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewKafkaConsumer creates a group reader. The group id is fixed per service,
// so each event type has exactly one logical consumer group per service.
func NewKafkaConsumer(brokers []string, groupID, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
			MaxWait:     500 * time.Millisecond,
		}),
	}
}

// Retry policy for a failed delivery. Committing offset N marks every lower
// offset on the partition consumed, so the loop must never advance past a
// failed message: it retries in place, and on exhaustion Run returns so the
// group reader resumes from the last committed offset.
const (
	handlerMaxAttempts = 5
	handlerBaseBackoff = 250 * time.Millisecond
	handlerMaxBackoff  = 5 * time.Second
)

// Run fetches messages and invokes the handler until the context is canceled.
// Offsets are committed only after the handler returns nil. A failing handler
// is retried on the same message with backoff; if the attempts run out, Run
// returns the error without committing, so the message is redelivered when
// the consumer restarts or the group rebalances.
func (c *KafkaConsumer) Run(ctx context.Context, handler Handler) error {
	lg := zctx.From(ctx)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			lg.Error("fetch message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		err = retryDelivery(ctx, handlerMaxAttempts, handlerBaseBackoff, handlerMaxBackoff, func(attempt int) error {
			herr := c.handle(ctx, handler, msg)
			if herr != nil {
				lg.Error("handle message",
					zap.String("topic", msg.Topic),
					zap.String("key", string(msg.Key)),
					zap.Int64("offset", msg.Offset),
					zap.Int("attempt", attempt),
					zap.Error(herr),
				)
			}
			return herr
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "handle %s offset %d", msg.Topic, msg.Offset)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			lg.Error("commit message", zap.Error(err))
		}
	}
}

// retryDelivery invokes fn up to maxAttempts times, sleeping with doubling
// backoff between attempts. It returns nil on the first success, the last
// error once the attempts are spent, or early when the context ends.
func retryDelivery(ctx context.Context, maxAttempts int, base, max time.Duration, fn func(attempt int) error) error {
	backoff := base
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > max {
			backoff = max
		}
	}
	return err
}

func (c *KafkaConsumer) handle(ctx context.Context, handler Handler, msg kafka.Message) error {
	ctx, span := tracer.Start(ctx, msg.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
	defer span.End()

	err := handler(ctx, Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Close closes the underlying reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
