package service

import (
	"context"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// FailedEvents lists outbox events that exhausted their retries. FAILED rows
// are never requeued automatically; this is the operator's view of them.
func FailedEvents(ctx context.Context, store Store, p model.Principal, limit int) ([]model.OutboxEvent, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("admin role required")
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return store.ListOutboxEvents(ctx, model.OutboxFailed, limit)
}
