package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claim-batch/internal/eventing"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	messages  []kafka.Message
	closed    bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed = true
	return nil
}

type runDone struct {
	RunID      int64     `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (runDone) EventKey() string { return "batch-2024-03--1" }

func TestBus_PublishUsesEnvelopeFromContext(t *testing.T) {
	writer := &mockKafkaWriter{}
	bus := NewBusWithWriter(writer, "claim-batch.events", nil)

	env, err := eventing.BuildEnvelope(runDone{RunID: 4, OccurredAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}, eventing.Meta{EventID: "evt-1"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(eventing.WithEnvelope(context.Background(), env), runDone{RunID: 4}))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "batch-2024-03--1", string(msg.Key))
	var decoded eventing.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "evt-1", decoded.EventID)
	assert.JSONEq(t, `{"run_id":4,"occurred_at":"2024-04-01T00:00:00Z"}`, string(decoded.Payload))
	assert.Equal(t, "event_id", msg.Headers[0].Key)
	assert.Equal(t, "evt-1", string(msg.Headers[0].Value))
}

func TestBus_PublishWithoutEnvelope(t *testing.T) {
	writer := &mockKafkaWriter{}
	bus := NewBusWithWriter(writer, "topic", nil)

	require.NoError(t, bus.Publish(context.Background(), runDone{RunID: 9}))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "batch-2024-03--1", string(writer.messages[0].Key))
}

func TestBus_PublishError(t *testing.T) {
	writer := &mockKafkaWriter{writeFunc: func(ctx context.Context, msgs ...kafka.Message) error {
		return errors.New("broker down")
	}}
	bus := NewBusWithWriter(writer, "topic", nil)

	err := bus.Publish(context.Background(), runDone{})
	assert.EqualError(t, err, "broker down")
	require.NoError(t, bus.Close())
	assert.True(t, writer.closed)
}

func TestNewBus_Validation(t *testing.T) {
	_, err := NewBus(Config{Topic: "t"}, nil)
	assert.Error(t, err)
	_, err = NewBus(Config{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)
}
