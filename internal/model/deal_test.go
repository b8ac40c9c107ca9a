package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDeal() Deal {
	return Deal{
		UUID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		StoreID:      1,
		ProductName:  "Organic Milk",
		RegularPrice: Dec(decimal.RequireFromString("5.99")),
		SalePrice:    Dec(decimal.RequireFromString("4.99")),
		ValidFrom:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:      time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
	}
}

func TestDealValidate_OK(t *testing.T) {
	t.Parallel()

	d := validDeal()
	assert.NoError(t, d.Validate())

	d.RegularPrice = nil
	d.UUID = ""
	assert.NoError(t, d.Validate())
}

func TestDealValidate_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edit  func(d *Deal)
		field string
	}{
		{"missing store", func(d *Deal) { d.StoreID = 0 }, "store_id"},
		{"blank name", func(d *Deal) { d.ProductName = "   " }, "product_name"},
		{"bad uuid", func(d *Deal) { d.UUID = "nope" }, "uuid"},
		{"negative sale", func(d *Deal) { d.SalePrice = Dec(decimal.NewFromInt(-1)) }, "sale_price"},
		{"inverted prices", func(d *Deal) { d.SalePrice = Dec(decimal.NewFromInt(9)) }, "sale_price"},
		{"discount at 100", func(d *Deal) { d.DiscountPercentage = Dec(decimal.NewFromInt(100)) }, "discount_percentage"},
		{"window reversed", func(d *Deal) { d.ValidTo = d.ValidFrom.AddDate(0, 0, -1) }, "valid_to"},
		{"missing from", func(d *Deal) { d.ValidFrom = time.Time{} }, "valid_from"},
		{"zero category", func(d *Deal) { d.CategoryID = ID64(0) }, "category_id"},
		{"sub-cent regular", func(d *Deal) { d.RegularPrice = Dec(decimal.RequireFromString("5.999")) }, "regular_price"},
		{"sub-cent sale", func(d *Deal) { d.SalePrice = Dec(decimal.RequireFromString("4.995")) }, "sale_price"},
		{"fine quantity", func(d *Deal) { d.Quantity = Dec(decimal.RequireFromString("1.2345")) }, "quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validDeal()
			tt.edit(&d)

			err := d.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			var fields []string
			for _, f := range ve.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestDealQuantize(t *testing.T) {
	t.Parallel()

	d := validDeal()
	d.RegularPrice = Dec(decimal.RequireFromString("2.499"))
	d.SalePrice = Dec(decimal.RequireFromString("1.999"))
	d.Quantity = Dec(decimal.RequireFromString("0.4536"))
	require.Error(t, d.CheckPrecision())

	d.Quantize()
	assert.Equal(t, "2.5", d.RegularPrice.String())
	assert.Equal(t, "2", d.SalePrice.String())
	assert.Equal(t, "0.454", d.Quantity.String())
	assert.NoError(t, d.CheckPrecision())
	assert.NoError(t, d.Validate())

	same := validDeal()
	same.RegularPrice = Dec(decimal.RequireFromString("4.999"))
	same.SalePrice = Dec(decimal.RequireFromString("4.995"))
	same.Quantize()
	assert.Nil(t, same.RegularPrice, "regular equal to sale after rounding is dropped")
	assert.Equal(t, "5", same.SalePrice.String())

	var empty Deal
	empty.Quantize()
	assert.Nil(t, empty.RegularPrice)
	assert.NoError(t, empty.CheckPrecision())
}

func TestDealActive(t *testing.T) {
	t.Parallel()

	d := validDeal()
	assert.True(t, d.Active(time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, d.Active(time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)))
	assert.False(t, d.Active(time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)))
	assert.False(t, d.Active(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestDealFilterEffectiveLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultListLimit, DealFilter{}.EffectiveLimit())
	assert.Equal(t, 5, DealFilter{Limit: 5}.EffectiveLimit())
}

func TestStoreUpdateEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, StoreUpdate{}.Empty())
	name := "Hmart"
	assert.False(t, StoreUpdate{Name: &name}.Empty())
}
