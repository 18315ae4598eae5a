package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

const bookingColumns = `id, user_id, bookable_item_id, booking_date, status, slot_start, slot_end, price, updated_at`

// activeStatuses are the booking states that hold capacity.
var activeStatuses = []string{string(model.BookingConfirmed), string(model.BookingPending)}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.UserID, &b.ItemID, &b.BookingDate, &b.Status, &b.SlotStart, &b.SlotEnd, &b.Price, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func queryBookings(ctx context.Context, q querier, sql string, args ...any) ([]model.Booking, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func listActiveBookings(ctx context.Context, q querier, itemID uuid.UUID) ([]model.Booking, error) {
	return queryBookings(ctx, q,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE bookable_item_id = $1 AND status = ANY($2)
		 ORDER BY booking_date ASC`,
		itemID, activeStatuses,
	)
}

// ListActiveBookings returns the CONFIRMED and PENDING bookings of an item.
func (s *Store) ListActiveBookings(ctx context.Context, itemID uuid.UUID) ([]model.Booking, error) {
	return listActiveBookings(ctx, s.db, itemID)
}

// CountActiveBookings counts capacity-holding bookings per item. Items
// without bookings are reported as zero.
func (s *Store) CountActiveBookings(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(itemIDs))
	for _, id := range itemIDs {
		counts[id] = 0
	}
	if len(itemIDs) == 0 {
		return counts, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT bookable_item_id, COUNT(*)
		 FROM bookings
		 WHERE bookable_item_id = ANY($1) AND status = ANY($2)
		 GROUP BY bookable_item_id`,
		itemIDs, activeStatuses,
	)
	if err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan booking count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// ListBookingsByItem returns all bookings of an item, oldest first.
func (s *Store) ListBookingsByItem(ctx context.Context, itemID uuid.UUID) ([]model.Booking, error) {
	return queryBookings(ctx, s.db,
		`SELECT `+bookingColumns+` FROM bookings WHERE bookable_item_id = $1 ORDER BY booking_date ASC`,
		itemID,
	)
}

// ListBookingsByUser returns all bookings made by a user, oldest first.
func (s *Store) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]model.Booking, error) {
	return queryBookings(ctx, s.db,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY booking_date ASC`,
		userID,
	)
}

func (t *txStore) FindLiveBooking(ctx context.Context, userID, itemID uuid.UUID) (*model.Booking, error) {
	b, err := scanBooking(t.q.QueryRow(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE user_id = $1 AND bookable_item_id = $2 AND status <> $3
		 LIMIT 1`,
		userID, itemID, model.BookingCancelled,
	))
	if err != nil {
		return nil, notFoundOr(err, "live booking for item", itemID)
	}
	return b, nil
}

func (t *txStore) ListActiveBookings(ctx context.Context, itemID uuid.UUID) ([]model.Booking, error) {
	return listActiveBookings(ctx, t.q, itemID)
}

// InsertBooking relies on bookings_user_item_active_uidx to reject a second
// live booking that slipped past FindLiveBooking.
func (t *txStore) InsertBooking(ctx context.Context, b *model.Booking) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.UserID, b.ItemID, b.BookingDate, b.Status, b.SlotStart, b.SlotEnd, b.Price, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("duplicate booking for this item")
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *txStore) GetBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, err := scanBooking(t.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "booking", id)
	}
	return b, nil
}

func (t *txStore) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, err := scanBooking(t.q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "booking", id)
	}
	return b, nil
}

func (t *txStore) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status model.BookingStatus, at time.Time) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, at,
	)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking %s not found", id)
	}
	return nil
}
