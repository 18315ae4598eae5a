package service

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// EffectivePrice resolves the price of item for a demand of bookingCount
// active bookings at now.
//
// Tiers are ordered by start date, then by max quantity, so early-bird and
// smaller buckets win. The first tier with startDate <= now <= endDate and
// minQuantity <= bookingCount < maxQuantity applies; otherwise the base price
// does. The remaining sort keys only make the order total, so the input order
// of the tiers never changes the answer.
func EffectivePrice(item *model.BookableItem, bookingCount int, now time.Time) decimal.Decimal {
	if len(item.PriceTiers) == 0 {
		return item.BasePrice
	}

	tiers := slices.Clone(item.PriceTiers)
	slices.SortFunc(tiers, compareTiers)

	for _, tier := range tiers {
		inWindow := !now.Before(tier.StartDate) && !now.After(tier.EndDate)
		inBucket := bookingCount >= tier.MinQuantity && bookingCount < tier.MaxQuantity

		if inWindow && inBucket {
			return tier.Price
		}
	}

	return item.BasePrice
}

func compareTiers(a, b model.PriceTier) int {
	if c := a.StartDate.Compare(b.StartDate); c != 0 {
		return c
	}
	if c := cmp.Compare(a.MaxQuantity, b.MaxQuantity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.MinQuantity, b.MinQuantity); c != 0 {
		return c
	}
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c
	}
	if c := a.EndDate.Compare(b.EndDate); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}
