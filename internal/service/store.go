package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// Store is the persistence boundary of the booking core. Lookups of a
// missing row return an error matching apperr.ErrNotFound.
type Store interface {
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetItem(ctx context.Context, id uuid.UUID) (*model.BookableItem, error)
	ListItems(ctx context.Context, filter model.ItemFilter) ([]model.BookableItem, error)
	ListActiveBookings(ctx context.Context, itemID uuid.UUID) ([]model.Booking, error)
	CountActiveBookings(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]int, error)
	ListBookingsByItem(ctx context.Context, itemID uuid.UUID) ([]model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]model.Booking, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListOutboxEvents(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxEvent, error)
}

// Tx is the set of reads and writes available inside a transaction.
type Tx interface {
	// GetItemForUpdate reads the item and holds a write lock on it until
	// the transaction ends. Every booking mutation takes this lock first.
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (*model.BookableItem, error)
	InsertItem(ctx context.Context, item *model.BookableItem) error
	UpdateItem(ctx context.Context, item *model.BookableItem) error
	DeleteItem(ctx context.Context, id uuid.UUID) error

	// FindLiveBooking returns the user's non-cancelled booking of the item.
	FindLiveBooking(ctx context.Context, userID, itemID uuid.UUID) (*model.Booking, error)
	ListActiveBookings(ctx context.Context, itemID uuid.UUID) ([]model.Booking, error)
	// InsertBooking reports a second live booking for the same (user, item)
	// as apperr.ErrConflict.
	InsertBooking(ctx context.Context, booking *model.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus, at time.Time) error

	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	InsertUser(ctx context.Context, user *model.User) error

	AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error
}
