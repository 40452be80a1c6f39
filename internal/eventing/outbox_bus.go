package eventing

import (
	"context"
	"database/sql"
	"time"

	"claim-batch/internal/observability/metrics"
)

// Execer runs statements on a database handle or an open transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OutboxWriter inserts outbox records through exec.
type OutboxWriter interface {
	InsertWith(ctx context.Context, exec Execer, env Envelope) (string, error)
}

// Recorder appends events to the outbox inside a caller's transaction.
type Recorder struct {
	outbox   OutboxWriter
	tenantID string
}

// NewRecorder constructs a recorder.
func NewRecorder(outbox OutboxWriter, tenantID string) *Recorder {
	return &Recorder{outbox: outbox, tenantID: tenantID}
}

// Record wraps event in an envelope and writes it through exec.
func (r *Recorder) Record(ctx context.Context, exec Execer, event any) error {
	if r == nil || r.outbox == nil {
		return nil
	}
	start := time.Now()
	meta := MetaFromContext(ctx, r.tenantID)
	env, err := BuildEnvelope(event, meta)
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := r.outbox.InsertWith(ctx, exec, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, time.Since(start))
	return nil
}
