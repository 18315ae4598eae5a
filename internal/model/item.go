package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemType tags the variant of a BookableItem.
type ItemType string

const (
	ItemTypeEvent       ItemType = "EVENT"
	ItemTypeAppointment ItemType = "APPOINTMENT"
	ItemTypeResource    ItemType = "RESOURCE"
	ItemTypeClass       ItemType = "CLASS"
	ItemTypeService     ItemType = "SERVICE"
)

func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeEvent, ItemTypeAppointment, ItemTypeResource, ItemTypeClass, ItemTypeService:
		return true
	}
	return false
}

// IsTimeSliced is true for items whose availability is a set of time
// windows rather than a head count.
func (t ItemType) IsTimeSliced() bool {
	switch t {
	case ItemTypeAppointment, ItemTypeResource, ItemTypeService:
		return true
	}
	return false
}

// PriceTier is a time- and demand-scoped override of an item's base price.
type PriceTier struct {
	Name        string          `json:"name" validate:"required,single_line"`
	Price       decimal.Decimal `json:"price" validate:"nonneg_decimal"`
	StartDate   time.Time       `json:"startDate" validate:"required"`
	EndDate     time.Time       `json:"endDate" validate:"required,gtefield=StartDate"`
	MinQuantity int             `json:"minQuantity" validate:"gte=0"`
	MaxQuantity int             `json:"maxQuantity" validate:"gte=1"`
}

// ItemDetails carries the type-specific part of a BookableItem.
type ItemDetails struct {
	EventSpecificField string `json:"eventSpecificField,omitempty"`
}

// BookableItem is a provider-owned resource that users can reserve.
type BookableItem struct {
	ID          uuid.UUID       `json:"id"`
	ProviderID  uuid.UUID       `json:"providerId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	Capacity    int             `json:"capacity"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Type        ItemType        `json:"type"`
	IsPrivate   bool            `json:"isPrivate"`
	PriceTiers  []PriceTier     `json:"priceTiers"`
	Details     *ItemDetails    `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ManagedBy reports whether p owns the item or is an admin.
func (i *BookableItem) ManagedBy(p Principal) bool {
	if p.IsAdmin() {
		return true
	}
	return !p.IsAnonymous() && i.ProviderID == p.UserID
}

// VisibleTo reports whether p may see the item at all.
func (i *BookableItem) VisibleTo(p Principal) bool {
	return !i.IsPrivate || i.ManagedBy(p)
}

// ItemRequest is the payload for creating or replacing a bookable item.
type ItemRequest struct {
	Name               string          `json:"name" validate:"required,max=200,single_line"`
	Description        string          `json:"description" validate:"max=5000"`
	Location           string          `json:"location" validate:"required,single_line"`
	StartTime          time.Time       `json:"startTime" validate:"required"`
	EndTime            *time.Time      `json:"endTime"`
	Capacity           int             `json:"capacity" validate:"gte=1,lte=100000"`
	BasePrice          decimal.Decimal `json:"basePrice" validate:"nonneg_decimal"`
	Type               ItemType        `json:"type" validate:"required,oneof=EVENT APPOINTMENT RESOURCE CLASS SERVICE"`
	IsPrivate          bool            `json:"isPrivate"`
	PriceTiers         []PriceTier     `json:"priceTiers" validate:"dive"`
	EventSpecificField string          `json:"eventSpecificField"`
}

// ItemView is an item as returned to callers, with the price resolved
// for the current demand.
type ItemView struct {
	BookableItem
	EffectivePrice decimal.Decimal `json:"effectivePrice"`
	ActiveBookings int             `json:"activeBookings"`
}

// ItemFilter narrows an item search. Zero-valued fields are ignored.
type ItemFilter struct {
	Keywords    string
	Type        ItemType
	Location    string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	StartsAfter *time.Time
	EndsBefore  *time.Time
	Viewer      Principal
	Limit       int
}
