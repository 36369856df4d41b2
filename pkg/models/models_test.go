package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
)

func validItem() Item {
	return Item{
		StockCode: "NAV-100",
		Brand:     "Garmin",
		Quantity:  5,
		Price:     decimal.RequireFromString("99.99"),
	}
}

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Item)
		kind   error
	}{
		{"valid", func(*Item) {}, nil},
		{"missing code", func(i *Item) { i.StockCode = "" }, stockserrors.ErrInvalidStock},
		{"lowercase code", func(i *Item) { i.StockCode = "nav 1" }, stockserrors.ErrInvalidStock},
		{"negative quantity", func(i *Item) { i.Quantity = -1 }, stockserrors.ErrInvalidStock},
		{"over limit", func(i *Item) { i.Quantity = MaxQuantity + 1 }, stockserrors.ErrStockLimitExceeded},
		{"zero price", func(i *Item) { i.Price = decimal.Zero }, stockserrors.ErrInvalidStock},
		{"blank brand", func(i *Item) { i.Brand = "   " }, stockserrors.ErrInvalidStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(&item)

			err := item.Validate("add")
			if tt.kind == nil {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestApplyVAT(t *testing.T) {
	got := ApplyVAT(decimal.RequireFromString("10.00"), DefaultVATRate)
	assert.True(t, got.Equal(decimal.RequireFromString("12.00")), got.String())

	got = ApplyVAT(decimal.RequireFromString("0.99"), DefaultVATRate)
	assert.True(t, got.Equal(decimal.RequireFromString("1.19")), got.String())
}

func TestItem_LowStockAndValue(t *testing.T) {
	item := validItem()
	assert.True(t, item.IsLowStock())
	assert.True(t, item.Value().Equal(decimal.RequireFromString("499.95")))

	item.Quantity = LowStockThreshold
	assert.False(t, item.IsLowStock())
}

func TestItem_PriceMarshalsAsNumber(t *testing.T) {
	data, err := json.Marshal(validItem().WithVAT(DefaultVATRate))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, 99.99, raw["price"])
	assert.Equal(t, 119.99, raw["price_with_vat"])
}

func TestNormalizeStockCode(t *testing.T) {
	assert.Equal(t, "NAV-1", NormalizeStockCode("  nav-1 "))
	assert.Equal(t, "Garmin Navigation system", DefaultStockName("Garmin", DefaultStockType))
}
