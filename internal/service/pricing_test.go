package service_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

func tieredEvent() *model.BookableItem {
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.BookableItem{
		Type:      model.ItemTypeEvent,
		BasePrice: decimal.NewFromInt(100),
		PriceTiers: []model.PriceTier{
			{
				Name:        "late",
				Price:       decimal.NewFromInt(80),
				StartDate:   jan1,
				EndDate:     time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
				MinQuantity: 10,
				MaxQuantity: 100,
			},
			{
				Name:        "early",
				Price:       decimal.NewFromInt(50),
				StartDate:   jan1,
				EndDate:     time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
				MinQuantity: 0,
				MaxQuantity: 10,
			},
		},
	}
}

func TestEffectivePrice(t *testing.T) {
	item := tieredEvent()

	tests := []struct {
		name  string
		count int
		now   time.Time
		want  int64
	}{
		{"early bird bucket", 3, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 50},
		{"upper bound of quantity is exclusive", 10, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 80},
		{"early window over", 3, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), 100},
		{"second tier later in the year", 12, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), 80},
		{"end date is inclusive", 0, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), 50},
		{"no tier matches", 500, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.EffectivePrice(item, tt.count, tt.now)
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestEffectivePriceWithoutTiers(t *testing.T) {
	item := &model.BookableItem{BasePrice: decimal.RequireFromString("12.50")}
	assert.True(t, item.BasePrice.Equal(service.EffectivePrice(item, 0, time.Now())))
}

func TestEffectivePriceIgnoresTierOrder(t *testing.T) {
	item := tieredEvent()
	item.PriceTiers = append(item.PriceTiers,
		model.PriceTier{
			Name:        "twin",
			Price:       decimal.NewFromInt(55),
			StartDate:   item.PriceTiers[1].StartDate,
			EndDate:     item.PriceTiers[1].EndDate,
			MinQuantity: 0,
			MaxQuantity: 10,
		},
	)
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	want := service.EffectivePrice(item, 2, now)

	r := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		r.Shuffle(len(item.PriceTiers), func(i, j int) {
			item.PriceTiers[i], item.PriceTiers[j] = item.PriceTiers[j], item.PriceTiers[i]
		})
		assert.True(t, want.Equal(service.EffectivePrice(item, 2, now)))
	}
	assert.True(t, decimal.NewFromInt(50).Equal(want))
}

func TestEffectivePriceDoesNotReorderInput(t *testing.T) {
	item := tieredEvent()
	service.EffectivePrice(item, 0, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "late", item.PriceTiers[0].Name)
}

func TestEffectivePriceEarlyAndLateTiers(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	item := &model.BookableItem{
		BasePrice: decimal.NewFromInt(100),
		PriceTiers: []model.PriceTier{
			{Name: "late", Price: decimal.NewFromInt(80), StartDate: t0, EndDate: t0.AddDate(0, 0, 30), MinQuantity: 0, MaxQuantity: 1000},
			{Name: "early", Price: decimal.NewFromInt(50), StartDate: t0, EndDate: t0.AddDate(0, 0, 7), MinQuantity: 0, MaxQuantity: 10},
		},
	}
	now := t0.AddDate(0, 0, 1)

	assert.True(t, decimal.NewFromInt(50).Equal(service.EffectivePrice(item, 5, now)))
	assert.True(t, decimal.NewFromInt(80).Equal(service.EffectivePrice(item, 10, now)))
}
