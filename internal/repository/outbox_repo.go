package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

const outboxColumns = `id, event_type, payload, recipient_address, status, retry_count,
	created_at, updated_at, processed_at, last_error`

func scanOutboxEvent(row pgx.Row) (*model.OutboxEvent, error) {
	var (
		e       model.OutboxEvent
		payload []byte
	)
	err := row.Scan(&e.ID, &e.EventType, &payload, &e.Recipient, &e.Status, &e.RetryCount,
		&e.CreatedAt, &e.UpdatedAt, &e.ProcessedAt, &e.LastError)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

func (s *Store) queryOutbox(ctx context.Context, sql string, args ...any) ([]model.OutboxEvent, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox events: %w", err)
	}
	defer rows.Close()

	var events []model.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// AppendOutboxEvent writes the event in the caller's transaction, so it
// commits or rolls back together with the triggering write.
func (t *txStore) AppendOutboxEvent(ctx context.Context, e *model.OutboxEvent) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO outbox_events (`+outboxColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.EventType, []byte(e.Payload), e.Recipient, e.Status, e.RetryCount,
		e.CreatedAt, e.UpdatedAt, e.ProcessedAt, e.LastError,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ListOutboxEvents returns events in one status, oldest first.
func (s *Store) ListOutboxEvents(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxEvent, error) {
	return s.queryOutbox(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox_events
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		status, limit,
	)
}

// ReleaseStuck hands rows abandoned in PROCESSING back to the queue. A row
// counts as abandoned once it has not been touched since cutoff; the lease
// expiry costs it one retry.
func (s *Store) ReleaseStuck(ctx context.Context, cutoff time.Time, maxRetries int, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events
		 SET retry_count = retry_count + 1,
		     status = CASE WHEN retry_count + 1 >= $2 THEN $3 ELSE $4 END,
		     last_error = $5,
		     updated_at = $6
		 WHERE status = $7 AND updated_at < $1`,
		cutoff, maxRetries, model.OutboxFailed, model.OutboxPending, "processing lease expired", now, model.OutboxProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("release stuck outbox events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListPending returns the next batch to deliver, oldest first.
func (s *Store) ListPending(ctx context.Context, limit, maxRetries int) ([]model.OutboxEvent, error) {
	ctx, span := tracer.Start(ctx, "postgres.outbox.list_pending")
	defer span.End()

	return s.queryOutbox(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox_events
		 WHERE status = $1 AND retry_count < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		model.OutboxPending, maxRetries, limit,
	)
}

// Claim moves a row from PENDING to PROCESSING. Only one concurrent caller
// can win; the others see false.
func (s *Store) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, model.OutboxProcessing, now, model.OutboxPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim outbox event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Save persists the delivery outcome of a claimed row. It only writes while
// the row is still PROCESSING; a row taken back by ReleaseStuck is a conflict.
func (s *Store) Save(ctx context.Context, e *model.OutboxEvent) error {
	if !model.OutboxProcessing.CanTransitionTo(e.Status) {
		return apperr.Validation("outbox event %s cannot move from %s to %s", e.ID, model.OutboxProcessing, e.Status)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events
		 SET status = $2, retry_count = $3, updated_at = $4, processed_at = $5, last_error = $6
		 WHERE id = $1 AND status = $7`,
		e.ID, e.Status, e.RetryCount, e.UpdatedAt, e.ProcessedAt, e.LastError, model.OutboxProcessing,
	)
	if err != nil {
		return fmt.Errorf("save outbox event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM outbox_events WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check outbox event: %w", err)
		}
		if !exists {
			return apperr.NotFound("outbox event %s not found", e.ID)
		}
		return apperr.Conflict("outbox event %s is no longer being processed", e.ID)
	}
	return nil
}
