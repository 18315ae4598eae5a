package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

const itemColumns = `id, provider_id, name, description, location, start_time, end_time,
	capacity, base_price, type, is_private, price_tiers, details, created_at, updated_at`

func scanItem(row pgx.Row) (*model.BookableItem, error) {
	var (
		it      model.BookableItem
		tiers   []byte
		details []byte
	)
	err := row.Scan(
		&it.ID, &it.ProviderID, &it.Name, &it.Description, &it.Location, &it.StartTime, &it.EndTime,
		&it.Capacity, &it.BasePrice, &it.Type, &it.IsPrivate, &tiers, &details, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tiers, &it.PriceTiers); err != nil {
		return nil, fmt.Errorf("decode price tiers: %w", err)
	}
	if len(details) > 0 {
		it.Details = &model.ItemDetails{}
		if err := json.Unmarshal(details, it.Details); err != nil {
			return nil, fmt.Errorf("decode item details: %w", err)
		}
	}
	return &it, nil
}

func getItem(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*model.BookableItem, error) {
	sql := `SELECT ` + itemColumns + ` FROM bookable_items WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	item, err := scanItem(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, notFoundOr(err, "bookable item", id)
	}
	return item, nil
}

// encodeItemJSON prepares the JSONB columns of an item.
func encodeItemJSON(item *model.BookableItem) (tiers []byte, details []byte, err error) {
	list := item.PriceTiers
	if list == nil {
		list = []model.PriceTier{}
	}
	if tiers, err = json.Marshal(list); err != nil {
		return nil, nil, fmt.Errorf("encode price tiers: %w", err)
	}
	if item.Details != nil {
		if details, err = json.Marshal(item.Details); err != nil {
			return nil, nil, fmt.Errorf("encode item details: %w", err)
		}
	}
	return tiers, details, nil
}

// GetItem returns a single item or apperr.ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*model.BookableItem, error) {
	return getItem(ctx, s.db, id, false)
}

// ListItems runs the filtered catalogue search.
func (s *Store) ListItems(ctx context.Context, filter model.ItemFilter) ([]model.BookableItem, error) {
	ctx, span := tracer.Start(ctx, "postgres.list_items")
	defer span.End()

	sql, args := buildItemQuery(filter)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []model.BookableItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetItemForUpdate acquires an exclusive row-level lock on the item.
func (t *txStore) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*model.BookableItem, error) {
	return getItem(ctx, t.q, id, true)
}

func (t *txStore) InsertItem(ctx context.Context, item *model.BookableItem) error {
	tiers, details, err := encodeItemJSON(item)
	if err != nil {
		return err
	}

	_, err = t.q.Exec(ctx,
		`INSERT INTO bookable_items (`+itemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		item.ID, item.ProviderID, item.Name, item.Description, item.Location, item.StartTime, item.EndTime,
		item.Capacity, item.BasePrice, item.Type, item.IsPrivate, tiers, details, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("bookable item %s already exists", item.ID)
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (t *txStore) UpdateItem(ctx context.Context, item *model.BookableItem) error {
	tiers, details, err := encodeItemJSON(item)
	if err != nil {
		return err
	}

	tag, err := t.q.Exec(ctx,
		`UPDATE bookable_items
		 SET name = $2, description = $3, location = $4, start_time = $5, end_time = $6,
		     capacity = $7, base_price = $8, type = $9, is_private = $10,
		     price_tiers = $11, details = $12, updated_at = $13
		 WHERE id = $1`,
		item.ID, item.Name, item.Description, item.Location, item.StartTime, item.EndTime,
		item.Capacity, item.BasePrice, item.Type, item.IsPrivate, tiers, details, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bookable item %s not found", item.ID)
	}
	return nil
}

func (t *txStore) DeleteItem(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM bookable_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("bookable item %s not found", id)
	}
	return nil
}
