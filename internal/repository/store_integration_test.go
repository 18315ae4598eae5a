//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/database"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

type StoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	store     *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.container, err = tcpostgres.Run(s.ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bookable_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)

	dsn, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.pool, err = pgxpool.New(s.ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(s.pool))

	s.store = NewStore(s.pool, zap.NewNop())
}

func (s *StoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(s.ctx))
	}
}

func (s *StoreSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE outbox_events, bookings, bookable_items, users CASCADE`)
	s.Require().NoError(err)
}

func (s *StoreSuite) insertUser(roles ...model.Role) model.Principal {
	id := uuid.New()
	u := &model.User{
		ID:           id,
		Username:     "u" + id.String()[:8],
		Email:        id.String()[:8] + "@example.com",
		PasswordHash: "x",
		Roles:        append([]model.Role{model.RoleUser}, roles...),
		CreatedAt:    time.Now().UTC(),
	}
	s.Require().NoError(s.store.InTx(s.ctx, func(tx service.Tx) error {
		return tx.InsertUser(s.ctx, u)
	}))
	return u.Principal()
}

func (s *StoreSuite) insertItem(provider model.Principal, capacity int) *model.BookableItem {
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	item := &model.BookableItem{
		ID:         uuid.New(),
		ProviderID: provider.UserID,
		Name:       "Evening concert",
		Location:   "Hall 1",
		StartTime:  start,
		Capacity:   capacity,
		BasePrice:  decimal.RequireFromString("19.99"),
		Type:       model.ItemTypeEvent,
		PriceTiers: []model.PriceTier{{
			Name: "early", Price: decimal.NewFromInt(10),
			StartDate: start.AddDate(0, -1, 0), EndDate: start,
			MinQuantity: 0, MaxQuantity: 5,
		}},
		Details:   &model.ItemDetails{EventSpecificField: "headliner"},
		CreatedAt: start,
		UpdatedAt: start,
	}
	s.Require().NoError(s.store.InTx(s.ctx, func(tx service.Tx) error {
		return tx.InsertItem(s.ctx, item)
	}))
	return item
}

func (s *StoreSuite) TestItemRoundTrip() {
	provider := s.insertUser(model.RoleProvider)
	item := s.insertItem(provider, 10)

	got, err := s.store.GetItem(s.ctx, item.ID)
	s.Require().NoError(err)
	s.Equal(item.Name, got.Name)
	s.True(item.BasePrice.Equal(got.BasePrice))
	s.Require().Len(got.PriceTiers, 1)
	s.Equal("early", got.PriceTiers[0].Name)
	s.Require().NotNil(got.Details)
	s.Equal("headliner", got.Details.EventSpecificField)

	_, err = s.store.GetItem(s.ctx, uuid.New())
	s.ErrorIs(err, apperr.ErrNotFound)

	items, err := s.store.ListItems(s.ctx, model.ItemFilter{Keywords: "concert", Limit: 10})
	s.Require().NoError(err)
	s.Len(items, 1)
}

func (s *StoreSuite) TestConcurrentBookingsRespectCapacity() {
	const capacity, attempts = 3, 12

	provider := s.insertUser(model.RoleProvider)
	item := s.insertItem(provider, capacity)
	engine := service.NewBookingEngine(s.store, clock.Real{}, zap.NewNop())

	users := make([]model.Principal, attempts)
	for i := range users {
		users[i] = s.insertUser()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, u := range users {
		wg.Add(1)
		go func(p model.Principal) {
			defer wg.Done()
			_, err := engine.CreateBooking(s.ctx, p, item.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			s.True(errors.Is(err, apperr.ErrConflict), "unexpected error: %v", err)
		}(u)
	}
	wg.Wait()

	s.Equal(capacity, succeeded)

	counts, err := s.store.CountActiveBookings(s.ctx, []uuid.UUID{item.ID})
	s.Require().NoError(err)
	s.Equal(capacity, counts[item.ID])

	pending, err := s.store.ListPending(s.ctx, 100, 5)
	s.Require().NoError(err)
	s.Len(pending, capacity, "one BOOKING_CONFIRMED per admitted booking")
}

func (s *StoreSuite) TestDuplicateBookingHitsUniqueIndex() {
	provider := s.insertUser(model.RoleProvider)
	user := s.insertUser()
	item := s.insertItem(provider, 10)

	newBooking := func() *model.Booking {
		return &model.Booking{
			ID: uuid.New(), UserID: user.UserID, ItemID: item.ID,
			BookingDate: time.Now().UTC(), Status: model.BookingConfirmed,
			SlotStart: item.StartTime, Price: decimal.Zero, UpdatedAt: time.Now().UTC(),
		}
	}

	s.Require().NoError(s.store.InTx(s.ctx, func(tx service.Tx) error {
		return tx.InsertBooking(s.ctx, newBooking())
	}))

	err := s.store.InTx(s.ctx, func(tx service.Tx) error {
		return tx.InsertBooking(s.ctx, newBooking())
	})
	s.ErrorIs(err, apperr.ErrConflict)
}

func (s *StoreSuite) TestOutboxClaimAndRelease() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	event, err := model.NewOutboxEvent(model.EventUserCreated, model.UserCreatedPayload{Username: "ana"}, "ana@example.com", now)
	s.Require().NoError(err)

	s.Require().NoError(s.store.InTx(s.ctx, func(tx service.Tx) error {
		return tx.AppendOutboxEvent(s.ctx, event)
	}))

	pending, err := s.store.ListPending(s.ctx, 10, 5)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.JSONEq(string(event.Payload), string(pending[0].Payload))

	won, err := s.store.Claim(s.ctx, event.ID, now)
	s.Require().NoError(err)
	s.True(won)

	won, err = s.store.Claim(s.ctx, event.ID, now)
	s.Require().NoError(err)
	s.False(won, "a claimed row cannot be claimed twice")

	released, err := s.store.ReleaseStuck(s.ctx, now.Add(time.Minute), 5, now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(1, released)

	pending, err = s.store.ListPending(s.ctx, 10, 5)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(1, pending[0].RetryCount)
	s.Require().NotNil(pending[0].LastError)

	done := pending[0]
	done.Status = model.OutboxCompleted
	s.ErrorIs(s.store.Save(s.ctx, &done), apperr.ErrConflict, "only a claimed row can be saved")

	won, err = s.store.Claim(s.ctx, event.ID, now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().True(won)

	pending[0].Status = model.OutboxFailed
	s.Require().NoError(s.store.Save(s.ctx, &pending[0]))

	failed, err := s.store.ListOutboxEvents(s.ctx, model.OutboxFailed, 10)
	s.Require().NoError(err)
	s.Len(failed, 1)
}
