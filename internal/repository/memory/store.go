// Package memory is an in-process implementation of the booking store and
// the outbox repository. Transactions are serialized by a single mutex and
// rolled back by restoring a snapshot, which is enough to reproduce the
// locking behaviour of the Postgres store in tests and local runs.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

type outboxRow struct {
	event model.OutboxEvent
	seq   int
}

type state struct {
	items    map[uuid.UUID]model.BookableItem
	bookings map[uuid.UUID]model.Booking
	users    map[uuid.UUID]model.User
	outbox   map[uuid.UUID]outboxRow
	seq      int
}

func (s state) clone() state {
	return state{
		items:    maps.Clone(s.items),
		bookings: maps.Clone(s.bookings),
		users:    maps.Clone(s.users),
		outbox:   maps.Clone(s.outbox),
		seq:      s.seq,
	}
}

// Store keeps every table in maps guarded by mu.
type Store struct {
	mu sync.Mutex
	st state
}

var _ service.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: state{
		items:    make(map[uuid.UUID]model.BookableItem),
		bookings: make(map[uuid.UUID]model.Booking),
		users:    make(map[uuid.UUID]model.User),
		outbox:   make(map[uuid.UUID]outboxRow),
	}}
}

// InTx holds the store lock for the whole of fn.
func (s *Store) InTx(ctx context.Context, fn func(tx service.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) GetItem(_ context.Context, id uuid.UUID) (*model.BookableItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getItem(&s.st, id)
}

func (s *Store) ListItems(_ context.Context, filter model.ItemFilter) ([]model.BookableItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.BookableItem
	for _, item := range s.st.items {
		if matches(&item, filter) {
			out = append(out, cloneItem(item))
		}
	}
	slices.SortFunc(out, func(a, b model.BookableItem) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) ListActiveBookings(_ context.Context, itemID uuid.UUID) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listActive(&s.st, itemID), nil
}

func (s *Store) CountActiveBookings(_ context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[uuid.UUID]int, len(itemIDs))
	for _, id := range itemIDs {
		counts[id] = len(listActive(&s.st, id))
	}
	return counts, nil
}

func (s *Store) ListBookingsByItem(_ context.Context, itemID uuid.UUID) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterBookings(&s.st, func(b model.Booking) bool { return b.ItemID == itemID }), nil
}

func (s *Store) ListBookingsByUser(_ context.Context, userID uuid.UUID) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterBookings(&s.st, func(b model.Booking) bool { return b.UserID == userID }), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.users {
		if u.Username == username {
			u.Roles = slices.Clone(u.Roles)
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user %q not found", username)
}

func (s *Store) ListOutboxEvents(_ context.Context, status model.OutboxStatus, limit int) ([]model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return selectOutbox(&s.st, limit, func(e model.OutboxEvent) bool { return e.Status == status }), nil
}

// tx operates on the live state; the caller already holds the lock.
type tx struct {
	st *state
}

func (t *tx) GetItemForUpdate(_ context.Context, id uuid.UUID) (*model.BookableItem, error) {
	return getItem(t.st, id)
}

func (t *tx) InsertItem(_ context.Context, item *model.BookableItem) error {
	if _, ok := t.st.items[item.ID]; ok {
		return apperr.Conflict("bookable item %s already exists", item.ID)
	}
	t.st.items[item.ID] = cloneItem(*item)
	return nil
}

func (t *tx) UpdateItem(_ context.Context, item *model.BookableItem) error {
	if _, ok := t.st.items[item.ID]; !ok {
		return apperr.NotFound("bookable item %s not found", item.ID)
	}
	t.st.items[item.ID] = cloneItem(*item)
	return nil
}

func (t *tx) DeleteItem(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.items[id]; !ok {
		return apperr.NotFound("bookable item %s not found", id)
	}
	delete(t.st.items, id)
	for bid, b := range t.st.bookings {
		if b.ItemID == id {
			delete(t.st.bookings, bid)
		}
	}
	return nil
}

func (t *tx) FindLiveBooking(_ context.Context, userID, itemID uuid.UUID) (*model.Booking, error) {
	if b, ok := findLive(t.st, userID, itemID); ok {
		return &b, nil
	}
	return nil, apperr.NotFound("no live booking for user %s on item %s", userID, itemID)
}

func (t *tx) ListActiveBookings(_ context.Context, itemID uuid.UUID) ([]model.Booking, error) {
	return listActive(t.st, itemID), nil
}

// InsertBooking mirrors the partial unique index of the Postgres schema.
func (t *tx) InsertBooking(_ context.Context, booking *model.Booking) error {
	if _, ok := findLive(t.st, booking.UserID, booking.ItemID); ok && booking.Status != model.BookingCancelled {
		return apperr.Conflict("duplicate booking for this item")
	}
	t.st.bookings[booking.ID] = *booking
	return nil
}

func (t *tx) GetBooking(_ context.Context, id uuid.UUID) (*model.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return &b, nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	return t.GetBooking(ctx, id)
}

func (t *tx) UpdateBookingStatus(_ context.Context, id uuid.UUID, status model.BookingStatus, at time.Time) error {
	b, ok := t.st.bookings[id]
	if !ok {
		return apperr.NotFound("booking %s not found", id)
	}
	b.Status = status
	b.UpdatedAt = at
	t.st.bookings[id] = b
	return nil
}

func (t *tx) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	u.Roles = slices.Clone(u.Roles)
	return &u, nil
}

func (t *tx) InsertUser(_ context.Context, user *model.User) error {
	for _, u := range t.st.users {
		if u.Username == user.Username {
			return apperr.Conflict("username %q is already taken", user.Username)
		}
	}
	u := *user
	u.Roles = slices.Clone(user.Roles)
	t.st.users[u.ID] = u
	return nil
}

func (t *tx) AppendOutboxEvent(_ context.Context, event *model.OutboxEvent) error {
	t.st.seq++
	t.st.outbox[event.ID] = outboxRow{event: *event, seq: t.st.seq}
	return nil
}

func getItem(st *state, id uuid.UUID) (*model.BookableItem, error) {
	item, ok := st.items[id]
	if !ok {
		return nil, apperr.NotFound("bookable item %s not found", id)
	}
	item = cloneItem(item)
	return &item, nil
}

func cloneItem(item model.BookableItem) model.BookableItem {
	item.PriceTiers = slices.Clone(item.PriceTiers)
	if item.EndTime != nil {
		end := *item.EndTime
		item.EndTime = &end
	}
	if item.Details != nil {
		d := *item.Details
		item.Details = &d
	}
	return item
}

func findLive(st *state, userID, itemID uuid.UUID) (model.Booking, bool) {
	for _, b := range st.bookings {
		if b.UserID == userID && b.ItemID == itemID && b.Status != model.BookingCancelled {
			return b, true
		}
	}
	return model.Booking{}, false
}

func listActive(st *state, itemID uuid.UUID) []model.Booking {
	return filterBookings(st, func(b model.Booking) bool {
		return b.ItemID == itemID && b.Status.IsActive()
	})
}

func filterBookings(st *state, keep func(model.Booking) bool) []model.Booking {
	var out []model.Booking
	for _, b := range st.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int {
		if c := a.BookingDate.Compare(b.BookingDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

func matches(item *model.BookableItem, f model.ItemFilter) bool {
	if !item.VisibleTo(f.Viewer) {
		return false
	}
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	if f.Location != "" && !containsFold(item.Location, f.Location) {
		return false
	}
	for _, term := range strings.Fields(f.Keywords) {
		if !containsFold(item.Name, term) && !containsFold(item.Description, term) {
			return false
		}
	}
	if f.MinPrice != nil && item.BasePrice.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && item.BasePrice.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.StartsAfter != nil && item.StartTime.Before(*f.StartsAfter) {
		return false
	}
	if f.EndsBefore != nil {
		end := item.StartTime
		if item.EndTime != nil {
			end = *item.EndTime
		}
		if end.After(*f.EndsBefore) {
			return false
		}
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func selectOutbox(st *state, limit int, keep func(model.OutboxEvent) bool) []model.OutboxEvent {
	var rows []outboxRow
	for _, r := range st.outbox {
		if keep(r.event) {
			rows = append(rows, r)
		}
	}
	slices.SortFunc(rows, func(a, b outboxRow) int {
		if c := a.event.CreatedAt.Compare(b.event.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]model.OutboxEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event)
	}
	return out
}
