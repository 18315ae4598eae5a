package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store) (model.User, model.BookableItem) {
	t.Helper()

	user := model.User{ID: uuid.New(), Username: "ana", Email: "ana@example.com", Roles: []model.Role{model.RoleUser}}
	item := model.BookableItem{
		ID:         uuid.New(),
		ProviderID: user.ID,
		Name:       "Yoga",
		Location:   "Studio 1",
		StartTime:  t0,
		Capacity:   10,
		BasePrice:  decimal.NewFromInt(15),
		Type:       model.ItemTypeClass,
	}
	require.NoError(t, s.InTx(context.Background(), func(tx service.Tx) error {
		if err := tx.InsertUser(context.Background(), &user); err != nil {
			return err
		}
		return tx.InsertItem(context.Background(), &item)
	}))
	return user, item
}

func TestInTxRollsBackOnError(t *testing.T) {
	s := NewStore()
	user, item := seed(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx service.Tx) error {
		b := &model.Booking{ID: uuid.New(), UserID: user.ID, ItemID: item.ID, Status: model.BookingConfirmed}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		event, err := model.NewOutboxEvent(model.EventBookingConfirmed, map[string]string{"id": b.ID.String()}, user.Email, t0)
		if err != nil {
			return err
		}
		if err := tx.AppendOutboxEvent(ctx, event); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	active, err := s.ListActiveBookings(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, s.AllOutboxEvents(ctx))
}

func TestInsertBookingRejectsSecondLiveBooking(t *testing.T) {
	s := NewStore()
	user, item := seed(t, s)
	ctx := context.Background()

	insert := func(status model.BookingStatus) error {
		return s.InTx(ctx, func(tx service.Tx) error {
			return tx.InsertBooking(ctx, &model.Booking{ID: uuid.New(), UserID: user.ID, ItemID: item.ID, Status: status})
		})
	}

	require.NoError(t, insert(model.BookingConfirmed))
	assert.ErrorIs(t, insert(model.BookingPending), apperr.ErrConflict)
	assert.NoError(t, insert(model.BookingCancelled), "cancelled rows are outside the index")
}

func TestInsertUserRejectsTakenUsername(t *testing.T) {
	s := NewStore()
	seed(t, s)

	err := s.InTx(context.Background(), func(tx service.Tx) error {
		return tx.InsertUser(context.Background(), &model.User{ID: uuid.New(), Username: "ana"})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestListItemsHidesPrivateItems(t *testing.T) {
	s := NewStore()
	owner, _ := seed(t, s)
	ctx := context.Background()

	private := model.BookableItem{
		ID: uuid.New(), ProviderID: owner.ID, Name: "Private session", Location: "Studio 2",
		StartTime: t0.Add(time.Hour), Capacity: 1, Type: model.ItemTypeClass, IsPrivate: true,
	}
	require.NoError(t, s.InTx(ctx, func(tx service.Tx) error { return tx.InsertItem(ctx, &private) }))

	anon, err := s.ListItems(ctx, model.ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, anon, 1)

	mine, err := s.ListItems(ctx, model.ItemFilter{Viewer: owner.Principal()})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Yoga", mine[0].Name, "ordered by start time")

	found, err := s.ListItems(ctx, model.ItemFilter{Viewer: owner.Principal(), Keywords: "PRIVATE"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestClaimIsExclusive(t *testing.T) {
	s := NewStore()
	user, _ := seed(t, s)
	ctx := context.Background()

	event, err := model.NewOutboxEvent(model.EventUserCreated, model.UserCreatedPayload{ID: user.ID, Username: user.Username}, user.Email, t0)
	require.NoError(t, err)
	require.NoError(t, s.InTx(ctx, func(tx service.Tx) error { return tx.AppendOutboxEvent(ctx, event) }))

	won, err := s.Claim(ctx, event.ID, t0)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.Claim(ctx, event.ID, t0)
	require.NoError(t, err)
	assert.False(t, won)

	pending, err := s.ListPending(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSaveRequiresProcessingRow(t *testing.T) {
	s := NewStore()
	user, _ := seed(t, s)
	ctx := context.Background()

	event, err := model.NewOutboxEvent(model.EventUserCreated, model.UserCreatedPayload{ID: user.ID, Username: user.Username}, user.Email, t0)
	require.NoError(t, err)
	require.NoError(t, s.InTx(ctx, func(tx service.Tx) error { return tx.AppendOutboxEvent(ctx, event) }))

	done := *event
	done.Status = model.OutboxCompleted
	assert.ErrorIs(t, s.Save(ctx, &done), apperr.ErrConflict, "row was never claimed")

	won, err := s.Claim(ctx, event.ID, t0)
	require.NoError(t, err)
	require.True(t, won)

	back := *event
	back.Status = model.OutboxProcessing
	assert.ErrorIs(t, s.Save(ctx, &back), apperr.ErrValidation)

	released, err := s.ReleaseStuck(ctx, t0.Add(time.Minute), 5, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, released)
	assert.ErrorIs(t, s.Save(ctx, &done), apperr.ErrConflict, "lease was taken back")

	got, err := s.GetOutboxEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	missing := done
	missing.ID = uuid.New()
	assert.ErrorIs(t, s.Save(ctx, &missing), apperr.ErrNotFound)
}
