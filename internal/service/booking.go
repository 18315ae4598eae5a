// Package service implements the booking core: conflict detection, price
// resolution, availability, the booking engine and the item catalogue.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/logging"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

var tracer = otel.Tracer("bookable/service")

// BookingEngine creates and cancels bookings. Each mutation runs in one
// transaction that locks the item row first and appends the matching
// outbox event before commit.
type BookingEngine struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger
}

func NewBookingEngine(store Store, clk clock.Clock, logger *zap.Logger) *BookingEngine {
	return &BookingEngine{store: store, clock: clk, logger: logger}
}

// CreateBooking reserves itemID for the principal.
//
// Checks run in order: duplicate live booking, capacity, then (for
// time-sliced items with an end time) overlap with the item's own window.
// The booking is stored as CONFIRMED at the effective price for the demand
// seen before it was admitted.
func (e *BookingEngine) CreateBooking(ctx context.Context, p model.Principal, itemID uuid.UUID) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer span.End()
	span.SetAttributes(attribute.String("item.id", itemID.String()))

	if p.IsAnonymous() {
		return nil, apperr.Forbidden("authentication required to book")
	}

	var booking *model.Booking
	err := e.store.InTx(ctx, func(tx Tx) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.VisibleTo(p) {
			return apperr.Forbidden("you are not authorized to book this private item")
		}

		live, err := tx.FindLiveBooking(ctx, p.UserID, itemID)
		switch {
		case err == nil:
			return apperr.Conflict("duplicate booking: booking %s already exists for this item", live.ID)
		case !errors.Is(err, apperr.ErrNotFound):
			return fmt.Errorf("find live booking: %w", err)
		}

		active, err := tx.ListActiveBookings(ctx, itemID)
		if err != nil {
			return fmt.Errorf("list active bookings: %w", err)
		}
		if err := Admit(item, active); err != nil {
			return err
		}

		user, err := tx.GetUser(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("load booking user: %w", err)
		}

		now := e.clock.Now()
		booking = &model.Booking{
			ID:          uuid.New(),
			UserID:      user.ID,
			ItemID:      item.ID,
			BookingDate: now,
			Status:      model.BookingConfirmed,
			SlotStart:   item.StartTime,
			SlotEnd:     copyTime(item.EndTime),
			Price:       EffectivePrice(item, CountActive(active), now),
			UpdatedAt:   now,
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(
			model.EventBookingConfirmed,
			model.NewBookingSnapshot(booking, item, user),
			user.Email,
			now,
		)
		if err != nil {
			return err
		}
		return tx.AppendOutboxEvent(ctx, event)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logging.Info(ctx, e.logger, "booking confirmed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("item_id", itemID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.String("price", booking.Price.String()),
	)
	return booking, nil
}

// CancelBooking moves a booking to CANCELLED. Only the owner or an admin
// may cancel, and only from a state whose lifecycle allows it.
func (e *BookingEngine) CancelBooking(ctx context.Context, p model.Principal, bookingID uuid.UUID) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID.String()))

	var booking *model.Booking
	err := e.store.InTx(ctx, func(tx Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !p.IsAdmin() && (p.IsAnonymous() || b.UserID != p.UserID) {
			return apperr.Forbidden("you are not authorized to cancel this booking")
		}

		// Item lock before booking lock, the same order CreateBooking uses.
		item, err := tx.GetItemForUpdate(ctx, b.ItemID)
		if err != nil {
			return err
		}
		b, err = tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}

		switch b.Status {
		case model.BookingCancelled:
			return apperr.Conflict("booking is already cancelled")
		case model.BookingCompleted:
			return apperr.Conflict("cannot cancel a completed booking")
		}
		if !b.Status.CanTransitionTo(model.BookingCancelled) {
			return apperr.Conflict("cannot cancel a booking in status %s", b.Status)
		}

		now := e.clock.Now()
		if err := tx.UpdateBookingStatus(ctx, b.ID, model.BookingCancelled, now); err != nil {
			return err
		}
		b.Status = model.BookingCancelled
		b.UpdatedAt = now

		owner, err := tx.GetUser(ctx, b.UserID)
		if err != nil {
			return fmt.Errorf("load booking owner: %w", err)
		}

		event, err := model.NewOutboxEvent(
			model.EventBookingCancelled,
			model.NewBookingSnapshot(b, item, owner),
			owner.Email,
			now,
		)
		if err != nil {
			return err
		}
		if err := tx.AppendOutboxEvent(ctx, event); err != nil {
			return err
		}

		booking = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	logging.Info(ctx, e.logger, "booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("cancelled_by", p.UserID.String()),
	)
	return booking, nil
}

// BookingsForItem lists every booking of an item. Restricted to the item's
// provider and admins.
func (e *BookingEngine) BookingsForItem(ctx context.Context, p model.Principal, itemID uuid.UUID) ([]model.Booking, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.ManagedBy(p) {
		return nil, apperr.Forbidden("you are not authorized to view bookings for this item")
	}
	return e.store.ListBookingsByItem(ctx, itemID)
}

// BookingsForUser lists the caller's own bookings.
func (e *BookingEngine) BookingsForUser(ctx context.Context, p model.Principal) ([]model.Booking, error) {
	if p.IsAnonymous() {
		return nil, apperr.Forbidden("authentication required")
	}
	return e.store.ListBookingsByUser(ctx, p.UserID)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
