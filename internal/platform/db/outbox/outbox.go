// Package outboxdb stores domain events in the same transaction as the
// write that produced them, for the relay worker to dispatch.
package outboxdb

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	dberrs "github.com/civictrack/civictrack-service/internal/platform/db/errs"
)

type Repository struct {
	exec sqlx.ExtContext
}

func New(exec sqlx.ExtContext) *Repository { return &Repository{exec: exec} }

type Event struct {
	ID          int64  `db:"id"`
	EventType   string `db:"event_type"`
	PayloadJSON string `db:"payload"`
	Attempts    int    `db:"attempts"`
}

func (r *Repository) Enqueue(ctx context.Context, eventType string, payloadJSON string) error {
	const op = "outbox.repo.enqueue"

	const q = `
        INSERT INTO issue_outbox (event_type, payload, status, attempts, next_attempt_at, created_at, updated_at)
        VALUES ($1, $2::jsonb, 'pending', 0, NOW(), NOW(), NOW());
    `
	if _, err := r.exec.ExecContext(ctx, q, eventType, payloadJSON); err != nil {
		return dberrs.Map(err, op)
	}
	return nil
}

// ClaimBatch marks up to limit due events as processing and returns
// them. Rows locked by a concurrent claimer are skipped.
func (r *Repository) ClaimBatch(ctx context.Context, limit int) ([]Event, error) {
	const op = "outbox.repo.claim_batch"

	if limit <= 0 {
		limit = 100
	}

	const q = `
        WITH claimed AS (
            UPDATE issue_outbox
            SET status = 'processing',
                attempts = attempts + 1,
                updated_at = NOW()
            WHERE id IN (
                SELECT id
                FROM issue_outbox
                WHERE status = 'pending' AND next_attempt_at <= NOW()
                ORDER BY id
                FOR UPDATE SKIP LOCKED
                LIMIT $1
            )
            RETURNING id, event_type, payload, attempts
        )
        SELECT id, event_type, payload, attempts FROM claimed ORDER BY id;
    `

	var events []Event
	if err := sqlx.SelectContext(ctx, r.exec, &events, q, limit); err != nil {
		return nil, dberrs.Map(err, op)
	}
	return events, nil
}

func (r *Repository) MarkDispatchedBatch(ctx context.Context, ids []int64) error {
	const op = "outbox.repo.mark_dispatched_batch"

	if len(ids) == 0 {
		return nil
	}

	const q = `
        UPDATE issue_outbox
        SET status = 'dispatched', updated_at = NOW()
        WHERE id = ANY($1);
    `
	if _, err := r.exec.ExecContext(ctx, q, ids); err != nil {
		return dberrs.Map(err, op)
	}
	return nil
}

func (r *Repository) MarkRetryBatch(ctx context.Context, ids []int64, nextAttemptAt time.Time, lastErr string) error {
	const op = "outbox.repo.mark_retry_batch"

	if len(ids) == 0 {
		return nil
	}

	const q = `
        UPDATE issue_outbox
        SET status = 'pending',
            next_attempt_at = $2,
            last_error = $3,
            updated_at = NOW()
        WHERE id = ANY($1);
    `
	if _, err := r.exec.ExecContext(ctx, q, ids, nextAttemptAt, lastErr); err != nil {
		return dberrs.Map(err, op)
	}
	return nil
}

func (r *Repository) MarkDead(ctx context.Context, id int64, lastErr string) error {
	const op = "outbox.repo.mark_dead"

	const q = `
        UPDATE issue_outbox
        SET status = 'dead',
            last_error = $2,
            updated_at = NOW()
        WHERE id = $1;
    `
	if _, err := r.exec.ExecContext(ctx, q, id, lastErr); err != nil {
		return dberrs.Map(err, op)
	}
	return nil
}
