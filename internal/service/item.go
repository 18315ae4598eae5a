package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/logging"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

const defaultListLimit = 100

// ItemService is the provider-facing catalogue of bookable items.
type ItemService struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger
}

func NewItemService(store Store, clk clock.Clock, logger *zap.Logger) *ItemService {
	return &ItemService{store: store, clock: clk, logger: logger}
}

// Create publishes a new item owned by p.
func (s *ItemService) Create(ctx context.Context, p model.Principal, req model.ItemRequest) (*model.ItemView, error) {
	if !p.CanPublish() {
		return nil, apperr.Forbidden("only providers can publish bookable items")
	}
	if err := validateItemRequest(&req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	item := &model.BookableItem{
		ID:         uuid.New(),
		ProviderID: p.UserID,
		CreatedAt:  now,
	}
	applyRequest(item, req, now)

	err := s.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, s.logger, "bookable item created",
		zap.String("item_id", item.ID.String()),
		zap.String("type", string(item.Type)),
		zap.String("provider_id", p.UserID.String()),
	)
	return s.view(item, 0), nil
}

// Update replaces the mutable fields of an item. Capacity cannot drop below
// the number of bookings already holding it, and a time-sliced item that is
// booked keeps its window.
func (s *ItemService) Update(ctx context.Context, p model.Principal, id uuid.UUID, req model.ItemRequest) (*model.ItemView, error) {
	if err := validateItemRequest(&req); err != nil {
		return nil, err
	}

	var (
		item   *model.BookableItem
		active int
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		item, err = tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.ManagedBy(p) {
			return apperr.Forbidden("you are not authorized to modify this item")
		}

		bookings, err := tx.ListActiveBookings(ctx, id)
		if err != nil {
			return fmt.Errorf("list active bookings: %w", err)
		}
		active = len(bookings)
		if req.Capacity < active {
			return apperr.Conflict("capacity %d is below the %d active bookings", req.Capacity, active)
		}
		if active > 0 && (item.Type.IsTimeSliced() || req.Type.IsTimeSliced()) && !sameWindow(item, req) {
			return apperr.Conflict("cannot move the time window of item %q while it has %d active bookings", item.Name, active)
		}

		applyRequest(item, req, s.clock.Now())
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, s.logger, "bookable item updated", zap.String("item_id", id.String()))
	return s.view(item, active), nil
}

// Delete removes an item that has no active bookings.
func (s *ItemService) Delete(ctx context.Context, p model.Principal, id uuid.UUID) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		item, err := tx.GetItemForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.ManagedBy(p) {
			return apperr.Forbidden("you are not authorized to delete this item")
		}

		bookings, err := tx.ListActiveBookings(ctx, id)
		if err != nil {
			return fmt.Errorf("list active bookings: %w", err)
		}
		if len(bookings) > 0 {
			return apperr.Conflict("item has %d active bookings", len(bookings))
		}
		return tx.DeleteItem(ctx, id)
	})
	if err != nil {
		return err
	}

	logging.Info(ctx, s.logger, "bookable item deleted", zap.String("item_id", id.String()))
	return nil
}

// Get returns one item as seen by p.
func (s *ItemService) Get(ctx context.Context, p model.Principal, id uuid.UUID) (*model.ItemView, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.VisibleTo(p) {
		return nil, apperr.Forbidden("you are not authorized to view this private item")
	}

	counts, err := s.store.CountActiveBookings(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}
	return s.view(item, counts[id]), nil
}

// List searches the catalogue. Private items are only returned to their
// provider and to admins.
func (s *ItemService) List(ctx context.Context, p model.Principal, filter model.ItemFilter) ([]model.ItemView, error) {
	filter.Viewer = p
	if filter.Limit <= 0 || filter.Limit > defaultListLimit {
		filter.Limit = defaultListLimit
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, apperr.Validation("minPrice cannot be greater than maxPrice")
	}
	if filter.StartsAfter != nil && filter.EndsBefore != nil && filter.StartsAfter.After(*filter.EndsBefore) {
		return nil, apperr.Validation("startsAfter cannot be after endsBefore")
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, apperr.Validation("unknown item type %q", filter.Type)
	}

	items, err := s.store.ListItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	counts, err := s.store.CountActiveBookings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}

	views := make([]model.ItemView, 0, len(items))
	for i := range items {
		if !items[i].VisibleTo(p) {
			continue
		}
		views = append(views, *s.view(&items[i], counts[items[i].ID]))
	}
	return views, nil
}

func (s *ItemService) view(item *model.BookableItem, active int) *model.ItemView {
	return &model.ItemView{
		BookableItem:   *item,
		EffectivePrice: EffectivePrice(item, active, s.clock.Now()),
		ActiveBookings: active,
	}
}

func applyRequest(item *model.BookableItem, req model.ItemRequest, now time.Time) {
	item.Name = req.Name
	item.Description = req.Description
	item.Location = req.Location
	item.StartTime = req.StartTime
	item.EndTime = copyTime(req.EndTime)
	item.Capacity = req.Capacity
	item.BasePrice = req.BasePrice
	item.Type = req.Type
	item.IsPrivate = req.IsPrivate
	item.PriceTiers = req.PriceTiers
	if item.PriceTiers == nil {
		item.PriceTiers = []model.PriceTier{}
	}

	item.Details = nil
	if req.Type == model.ItemTypeEvent && req.EventSpecificField != "" {
		item.Details = &model.ItemDetails{EventSpecificField: req.EventSpecificField}
	}
	item.UpdatedAt = now
}

// sameWindow compares at the microsecond precision Postgres stores.
func sameWindow(item *model.BookableItem, req model.ItemRequest) bool {
	eq := func(a, b time.Time) bool {
		return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
	}
	if !eq(item.StartTime, req.StartTime) {
		return false
	}
	if item.EndTime == nil || req.EndTime == nil {
		return item.EndTime == nil && req.EndTime == nil
	}
	return eq(*item.EndTime, *req.EndTime)
}
