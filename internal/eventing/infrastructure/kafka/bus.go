package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"claim-batch/internal/eventing"
	"claim-batch/internal/observability/logging"
)

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the bus writer.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Bus publishes outbox envelopes to one Kafka topic keyed by partition key.
type Bus struct {
	writer WriterInterface
	topic  string
	logger *zap.Logger
}

// NewBus constructs a bus backed by a kafka.Writer.
func NewBus(cfg Config, logger *zap.Logger) (*Bus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka bus: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka bus: empty topic")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
	}
	return NewBusWithWriter(writer, cfg.Topic, logger), nil
}

// NewBusWithWriter wraps an existing writer.
func NewBusWithWriter(writer WriterInterface, topic string, logger *zap.Logger) *Bus {
	return &Bus{writer: writer, topic: topic, logger: logging.OrNop(logger)}
}

// Publish writes the envelope carried by ctx. Events published without an
// envelope are wrapped first.
func (b *Bus) Publish(ctx context.Context, event any) error {
	if b == nil || b.writer == nil {
		return errors.New("kafka bus: nil writer")
	}
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		var err error
		env, err = eventing.BuildEnvelope(event, eventing.Meta{})
		if err != nil {
			return err
		}
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(env.Key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "correlation_id", Value: []byte(env.CorrelationID)},
		},
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	b.logger.Debug("event published",
		zap.String("topic", b.topic),
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("key", env.Key),
	)
	return nil
}

// Close flushes and closes the writer.
func (b *Bus) Close() error {
	if b == nil || b.writer == nil {
		return nil
	}
	return b.writer.Close()
}
