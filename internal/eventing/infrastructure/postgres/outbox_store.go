package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"claim-batch/internal/eventing"
)

const (
	defaultMaxAttempts = 5
	defaultLease       = time.Minute
	defaultClaimLimit  = 50
)

// OutboxStore keeps outbox records in event_outbox. Relays claim rows
// with a lease so several processes can drain the same table.
type OutboxStore struct {
	db          *sql.DB
	maxAttempts int
	lease       time.Duration
	now         func() time.Time
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithMaxAttempts sets how often a failed record is retried.
func WithMaxAttempts(attempts int) OutboxOption {
	return func(store *OutboxStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// WithLease sets how long a claimed record stays invisible to other relays.
func WithLease(lease time.Duration) OutboxOption {
	return func(store *OutboxStore) {
		if lease > 0 {
			store.lease = lease
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{
		db:          db,
		maxAttempts: defaultMaxAttempts,
		lease:       defaultLease,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

const insertOutboxSQL = `
INSERT INTO event_outbox (id, event_id, event_type, partition_key, payload, status, attempts)
VALUES ($1, $2, $3, $4, $5, 'pending', 0)
ON CONFLICT (id) DO NOTHING`

// InsertWith writes env through exec, normally the transaction that
// produced the event.
func (s *OutboxStore) InsertWith(ctx context.Context, exec eventing.Execer, env eventing.Envelope) (string, error) {
	if s == nil || exec == nil {
		return "", errors.New("outbox store: nil executor")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	outboxID := eventing.NewEventID()
	if _, err := exec.ExecContext(ctx, insertOutboxSQL, outboxID, env.EventID, env.EventType, env.Key, payload); err != nil {
		return "", err
	}
	return outboxID, nil
}

// Records are claimable when new, when retryable after a failure, or
// when a previous claim's lease has run out.
const claimOutboxSQL = `
WITH claimed AS (
	UPDATE event_outbox o
	SET status = 'claimed', claimed_at = $1
	FROM (
		SELECT id
		FROM event_outbox
		WHERE status = 'pending'
			OR (status = 'failed' AND attempts < $2)
			OR (status = 'claimed' AND claimed_at < $3)
		ORDER BY created_at ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED
	) next
	WHERE o.id = next.id
	RETURNING o.id, o.payload, o.created_at
)
SELECT id, payload FROM claimed ORDER BY created_at ASC`

// ListPending claims up to limit records in creation order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = defaultClaimLimit
	}
	now := s.now()
	rows, err := s.db.QueryContext(ctx, claimOutboxSQL, now, s.maxAttempts, now.Add(-s.lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var env eventing.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("outbox record %s: %w", id, err)
		}
		result = append(result, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSent marks a record as delivered.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE event_outbox SET status = 'sent', sent_at = $1, claimed_at = NULL WHERE id = $2`, s.now(), id)
	return err
}

// MarkFailed releases a record for retry and counts the attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE event_outbox SET status = 'failed', attempts = attempts + 1, claimed_at = NULL WHERE id = $1`, id)
	return err
}
