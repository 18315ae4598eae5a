package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/repository/memory"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

var baseTime = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	clock  *clock.Manual
	engine *service.BookingEngine
	items  *service.ItemService
	users  *service.UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	clk := clock.NewManual(baseTime.Add(-24 * time.Hour))
	logger := zap.NewNop()

	return &fixture{
		store:  store,
		clock:  clk,
		engine: service.NewBookingEngine(store, clk, logger),
		items:  service.NewItemService(store, clk, logger),
		users:  service.NewUserService(store, clk, logger).WithBcryptCost(4),
	}
}

func (f *fixture) addUser(t *testing.T, roles ...model.Role) model.Principal {
	t.Helper()

	if len(roles) == 0 {
		roles = []model.Role{model.RoleUser}
	}
	id := uuid.New()
	user := &model.User{
		ID:        id,
		Username:  "user" + id.String()[:8],
		Email:     id.String()[:8] + "@example.com",
		Roles:     roles,
		CreatedAt: f.clock.Now(),
	}
	err := f.store.InTx(context.Background(), func(tx service.Tx) error {
		return tx.InsertUser(context.Background(), user)
	})
	require.NoError(t, err)
	return user.Principal()
}

func (f *fixture) addItem(t *testing.T, item model.BookableItem) *model.BookableItem {
	t.Helper()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Name == "" {
		item.Name = string(item.Type) + " item"
	}
	if item.Capacity == 0 {
		item.Capacity = 1
	}
	if item.StartTime.IsZero() {
		item.StartTime = baseTime
	}
	err := f.store.InTx(context.Background(), func(tx service.Tx) error {
		return tx.InsertItem(context.Background(), &item)
	})
	require.NoError(t, err)
	return &item
}

// addBooking stores a CONFIRMED booking occupying [start, end).
func (f *fixture) addBooking(t *testing.T, itemID uuid.UUID, start, end time.Time) {
	t.Helper()

	user := f.addUser(t)
	b := &model.Booking{
		ID:          uuid.New(),
		UserID:      user.UserID,
		ItemID:      itemID,
		BookingDate: f.clock.Now(),
		Status:      model.BookingConfirmed,
		SlotStart:   start,
		SlotEnd:     &end,
		Price:       decimal.Zero,
		UpdatedAt:   f.clock.Now(),
	}
	err := f.store.InTx(context.Background(), func(tx service.Tx) error {
		return tx.InsertBooking(context.Background(), b)
	})
	require.NoError(t, err)
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 1, hour, minute, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }
