package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

const leaseExpired = "processing lease expired"

// ReleaseStuck returns PROCESSING rows last touched before cutoff to PENDING,
// or to FAILED once the bumped retry count reaches maxRetries.
func (s *Store) ReleaseStuck(_ context.Context, cutoff time.Time, maxRetries int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for id, r := range s.st.outbox {
		e := r.event
		if e.Status != model.OutboxProcessing || !e.UpdatedAt.Before(cutoff) {
			continue
		}

		e.RetryCount++
		e.Status = model.OutboxPending
		if e.RetryCount >= maxRetries {
			e.Status = model.OutboxFailed
		}
		msg := leaseExpired
		e.LastError = &msg
		e.UpdatedAt = now

		r.event = e
		s.st.outbox[id] = r
		released++
	}
	return released, nil
}

// ListPending returns up to limit PENDING rows with retries left, oldest
// first.
func (s *Store) ListPending(_ context.Context, limit, maxRetries int) ([]model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return selectOutbox(&s.st, limit, func(e model.OutboxEvent) bool {
		return e.Status == model.OutboxPending && e.RetryCount < maxRetries
	}), nil
}

// Claim moves a PENDING row to PROCESSING. It reports false when the row is
// no longer PENDING.
func (s *Store) Claim(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.st.outbox[id]
	if !ok || r.event.Status != model.OutboxPending {
		return false, nil
	}
	r.event.Status = model.OutboxProcessing
	r.event.UpdatedAt = now
	s.st.outbox[id] = r
	return true, nil
}

// Save writes back the delivery outcome of a claimed row. The row must still
// be PROCESSING.
func (s *Store) Save(_ context.Context, event *model.OutboxEvent) error {
	if !model.OutboxProcessing.CanTransitionTo(event.Status) {
		return apperr.Validation("outbox event %s cannot move from %s to %s", event.ID, model.OutboxProcessing, event.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.st.outbox[event.ID]
	if !ok {
		return apperr.NotFound("outbox event %s not found", event.ID)
	}
	if r.event.Status != model.OutboxProcessing {
		return apperr.Conflict("outbox event %s is no longer being processed", event.ID)
	}
	r.event = *event
	s.st.outbox[event.ID] = r
	return nil
}

// GetOutboxEvent returns one row.
func (s *Store) GetOutboxEvent(_ context.Context, id uuid.UUID) (*model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.st.outbox[id]
	if !ok {
		return nil, apperr.NotFound("outbox event %s not found", id)
	}
	e := r.event
	return &e, nil
}

// AllOutboxEvents returns every row in append order.
func (s *Store) AllOutboxEvents(_ context.Context) []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return selectOutbox(&s.st, 0, func(model.OutboxEvent) bool { return true })
}
