package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"claim-batch/internal/observability/logging"
	"claim-batch/internal/observability/metrics"
)

// Dispatcher relays outbox events to the message bus.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
	logger   *zap.Logger
}

// EventBus is the minimal publish interface.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq, logger: logging.OrNop(logger)}
}

// Dispatch pulls pending outbox messages and delivers them.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) error {
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return err
	}

	sent, failed, dead := 0, 0, 0
	for _, record := range records {
		env := record.Envelope
		payload, err := d.registry.DecodePayload(env)
		if err == nil {
			err = d.bus.Publish(WithEnvelope(ctx, env), payload)
		}
		if err != nil {
			failed++
			d.logger.Warn("outbox delivery failed",
				zap.String("outbox_id", record.ID),
				zap.String("event_id", env.EventID),
				zap.String("event_type", env.EventType),
				zap.Error(err),
			)
			if markErr := d.outbox.MarkFailed(ctx, record.ID); markErr != nil {
				d.logger.Error("outbox mark failed", zap.String("outbox_id", record.ID), zap.Error(markErr))
			}
			if d.dlq != nil {
				if dlqErr := d.dlq.RecordFailure(ctx, env, err); dlqErr != nil {
					d.logger.Error("dlq record failed", zap.String("event_id", env.EventID), zap.Error(dlqErr))
				} else {
					dead++
				}
			}
			continue
		}

		if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
			d.logger.Error("outbox mark sent", zap.String("outbox_id", record.ID), zap.Error(err))
		}
		sent++
	}
	metrics.ObserveOutboxDispatch(metrics.ResultSuccess, time.Since(start), sent, failed, dead)
	return nil
}

// Run dispatches every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, limit int) {
	if d == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Dispatch(ctx, limit); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox dispatch", zap.Error(err))
			}
		}
	}
}
