package service

import (
	"time"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// Overlaps reports whether windows a and b share any instant. Identical
// windows always overlap, including zero-length ones.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aStart.Before(bEnd) && aEnd.After(bStart) {
		return true
	}
	return aStart.Equal(bStart) && aEnd.Equal(bEnd)
}

// CountActive returns how many bookings hold capacity.
func CountActive(bookings []model.Booking) int {
	n := 0
	for _, b := range bookings {
		if b.Status.IsActive() {
			n++
		}
	}
	return n
}

// Blocking returns the active bookings whose occupancy window overlaps
// [start, end). Bookings without an end time occupy no window.
func Blocking(bookings []model.Booking, start, end time.Time) []model.Booking {
	var out []model.Booking
	for _, b := range bookings {
		if !b.Status.IsActive() || b.SlotEnd == nil {
			continue
		}
		if Overlaps(b.SlotStart, *b.SlotEnd, start, end) {
			out = append(out, b)
		}
	}
	return out
}

// Admit decides whether one more booking fits on item given its current
// bookings. Duplicate detection is the caller's job since it also covers
// inactive, non-cancelled states.
//
// Time-sliced items with an end time are an exclusive occupancy of their own
// window. Every booking of the item occupies the item's current window, not
// the snapshot taken when it was made, so an edited window stays exclusive.
func Admit(item *model.BookableItem, bookings []model.Booking) error {
	if CountActive(bookings) >= item.Capacity {
		return apperr.Conflict("bookable item %q is fully booked", item.Name)
	}

	if item.EndTime != nil && item.Type.IsTimeSliced() {
		if len(Blocking(occupying(item, bookings), item.StartTime, *item.EndTime)) > 0 {
			return apperr.Conflict("slot occupied: bookable item %q is already booked for the requested time slot", item.Name)
		}
	}

	return nil
}

// occupying re-anchors each booking on the item's current window.
func occupying(item *model.BookableItem, bookings []model.Booking) []model.Booking {
	out := make([]model.Booking, len(bookings))
	for i, b := range bookings {
		b.SlotStart, b.SlotEnd = item.StartTime, item.EndTime
		out[i] = b
	}
	return out
}
