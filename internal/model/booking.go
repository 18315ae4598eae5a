package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus is a state in the booking lifecycle.
type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingConfirmed  BookingStatus = "CONFIRMED"
	BookingCancelled  BookingStatus = "CANCELLED"
	BookingCompleted  BookingStatus = "COMPLETED"
	BookingNoShow     BookingStatus = "NO_SHOW"
	BookingWaitlisted BookingStatus = "WAITLISTED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:    {BookingConfirmed, BookingCancelled, BookingWaitlisted},
	BookingWaitlisted: {BookingPending, BookingCancelled},
	BookingConfirmed:  {BookingCancelled, BookingCompleted, BookingNoShow},
}

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted, BookingNoShow, BookingWaitlisted:
		return true
	}
	return false
}

// IsActive reports whether the booking holds capacity on its item.
func (s BookingStatus) IsActive() bool {
	return s == BookingConfirmed || s == BookingPending
}

// CanTransitionTo reports whether the lifecycle allows s -> next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking is a user's reservation of a bookable item.
//
// SlotStart/SlotEnd snapshot the occupancy window at creation time so later
// edits to the item do not move existing reservations.
type Booking struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	ItemID      uuid.UUID       `json:"bookableItemId"`
	BookingDate time.Time       `json:"bookingDate"`
	Status      BookingStatus   `json:"status"`
	SlotStart   time.Time       `json:"slotStart"`
	SlotEnd     *time.Time      `json:"slotEnd,omitempty"`
	Price       decimal.Decimal `json:"price"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// BookingRequest is the payload for reserving an item.
type BookingRequest struct {
	BookableItemID uuid.UUID `json:"bookableItemId" validate:"required"`
}

// BookingSnapshot is the serialized form of a booking carried in outbox
// payloads.
type BookingSnapshot struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"userId"`
	Username         string          `json:"username"`
	BookableItemID   uuid.UUID       `json:"bookableItemId"`
	BookableItemName string          `json:"bookableItemName"`
	Type             ItemType        `json:"type"`
	BookingDate      time.Time       `json:"bookingDate"`
	Status           BookingStatus   `json:"status"`
	Price            decimal.Decimal `json:"price"`
}

func NewBookingSnapshot(b *Booking, item *BookableItem, user *User) BookingSnapshot {
	return BookingSnapshot{
		ID:               b.ID,
		UserID:           b.UserID,
		Username:         user.Username,
		BookableItemID:   item.ID,
		BookableItemName: item.Name,
		Type:             item.Type,
		BookingDate:      b.BookingDate,
		Status:           b.Status,
		Price:            b.Price,
	}
}
