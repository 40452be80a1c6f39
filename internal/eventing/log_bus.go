package eventing

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// LogBus publishes events to the log. It stands in for a broker when none is configured.
type LogBus struct {
	logger *zap.Logger
}

// NewLogBus constructs a logging bus.
func NewLogBus(logger *zap.Logger) *LogBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogBus{logger: logger}
}

// Publish logs the event type and partition key.
func (b *LogBus) Publish(ctx context.Context, event any) error {
	_ = ctx
	if b == nil {
		return errors.New("eventing: nil log bus")
	}
	if event == nil {
		return errors.New("eventing: nil event")
	}
	key := ""
	if keyed, ok := event.(Keyed); ok {
		key = keyed.EventKey()
	}
	b.logger.Info("event published", zap.String("event_type", TypeName(event)), zap.String("key", key))
	return nil
}
