package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

const (
	DefaultSlotDuration = 60 * time.Minute
	DefaultSlotBuffer   = 15 * time.Minute
)

// AvailabilityCalculator enumerates bookable slots for an item.
type AvailabilityCalculator struct {
	store        Store
	slotDuration time.Duration
	buffer       time.Duration
}

// NewAvailabilityCalculator uses 60-minute slots with a 15-minute buffer.
func NewAvailabilityCalculator(store Store) *AvailabilityCalculator {
	return &AvailabilityCalculator{
		store:        store,
		slotDuration: DefaultSlotDuration,
		buffer:       DefaultSlotBuffer,
	}
}

// WithSlotting overrides the slot duration and buffer.
func (a *AvailabilityCalculator) WithSlotting(slotDuration, buffer time.Duration) *AvailabilityCalculator {
	a.slotDuration = slotDuration
	a.buffer = buffer
	return a
}

// AvailableSlots lists the free slots of item between rangeStart and
// rangeEnd as seen by p.
func (a *AvailabilityCalculator) AvailableSlots(
	ctx context.Context,
	p model.Principal,
	itemID uuid.UUID,
	rangeStart, rangeEnd time.Time,
) ([]model.Slot, error) {
	if rangeStart.After(rangeEnd) {
		return nil, apperr.Validation("start date cannot be after end date")
	}

	item, err := a.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if !item.VisibleTo(p) {
		return nil, apperr.Forbidden("you are not authorized to view availability for this private item")
	}

	bookings, err := a.store.ListActiveBookings(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}

	return ComputeSlots(item, bookings, rangeStart, rangeEnd, a.slotDuration, a.buffer), nil
}

// ComputeSlots is the pure part of AvailableSlots.
//
// EVENT and CLASS items are one unit of availability: their own window is
// returned while capacity remains. Time-sliced items are scanned forward from
// rangeStart in slotDuration steps separated by buffer; a candidate blocked
// by a booking is skipped and the scan resumes buffer after the latest
// blocking booking ends. The scan stops once a candidate would end after
// rangeEnd or after the item's end time.
func ComputeSlots(
	item *model.BookableItem,
	bookings []model.Booking,
	rangeStart, rangeEnd time.Time,
	slotDuration, buffer time.Duration,
) []model.Slot {
	slots := []model.Slot{}

	switch item.Type {
	case model.ItemTypeEvent, model.ItemTypeClass:
		if CountActive(bookings) < item.Capacity {
			slots = append(slots, newSlot(item, item.StartTime, item.EndTime))
		}

	case model.ItemTypeAppointment, model.ItemTypeResource, model.ItemTypeService:
		if slotDuration <= 0 {
			return slots
		}

		cursor := rangeStart
		for {
			end := cursor.Add(slotDuration)
			if end.After(rangeEnd) {
				break
			}
			if item.EndTime != nil && end.After(*item.EndTime) {
				break
			}

			blocking := Blocking(bookings, cursor, end)
			if len(blocking) == 0 {
				slots = append(slots, newSlot(item, cursor, &end))
				cursor = end.Add(buffer)
				continue
			}

			latest := *blocking[0].SlotEnd
			for _, b := range blocking[1:] {
				if b.SlotEnd.After(latest) {
					latest = *b.SlotEnd
				}
			}
			cursor = latest.Add(buffer)
		}
	}

	return slots
}

func newSlot(item *model.BookableItem, start time.Time, end *time.Time) model.Slot {
	return model.Slot{
		Start:    start,
		End:      end,
		ItemID:   item.ID.String(),
		ItemName: item.Name,
	}
}
