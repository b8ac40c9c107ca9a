package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldError describes one invalid deal attribute.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError lists every shape or range violation found on a deal.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid deal: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

var hundred = decimal.NewFromInt(100)

// Validate checks the deal's shape and range invariants. It returns a
// *ValidationError, or nil when the deal is well formed.
func (d *Deal) Validate() error {
	ve := &ValidationError{}

	if d.UUID != "" {
		if _, err := uuid.Parse(d.UUID); err != nil {
			ve.add("uuid", "not a valid uuid")
		}
	}
	if d.StoreID <= 0 {
		ve.add("store_id", "required")
	}
	if strings.TrimSpace(d.ProductName) == "" {
		ve.add("product_name", "required")
	}
	if d.CategoryID != nil && *d.CategoryID <= 0 {
		ve.add("category_id", "must be positive")
	}
	if d.RegularPrice != nil && d.RegularPrice.IsNegative() {
		ve.add("regular_price", "must be non-negative")
	}
	if d.SalePrice != nil && d.SalePrice.IsNegative() {
		ve.add("sale_price", "must be non-negative")
	}
	if d.RegularPrice != nil && d.SalePrice != nil && d.SalePrice.GreaterThan(*d.RegularPrice) {
		ve.add("sale_price", "exceeds regular_price")
	}
	if d.Quantity != nil && d.Quantity.IsNegative() {
		ve.add("quantity", "must be non-negative")
	}
	if p := d.DiscountPercentage; p != nil && (p.IsNegative() || p.GreaterThanOrEqual(hundred)) {
		ve.add("discount_percentage", "must be in [0, 100)")
	}
	if d.ValidFrom.IsZero() {
		ve.add("valid_from", "required")
	}
	if d.ValidTo.IsZero() {
		ve.add("valid_to", "required")
	}
	if !d.ValidFrom.IsZero() && !d.ValidTo.IsZero() && Date(d.ValidFrom).After(Date(d.ValidTo)) {
		ve.add("valid_to", "before valid_from")
	}
	d.checkPrecision(ve)

	if len(ve.Fields) == 0 {
		return nil
	}
	return ve
}

// CheckPrecision rejects prices, discount or quantity carrying more decimal
// places than the stores keep. Stores call it so they never round silently.
func (d *Deal) CheckPrecision() error {
	ve := &ValidationError{}
	d.checkPrecision(ve)
	if len(ve.Fields) == 0 {
		return nil
	}
	return ve
}

func (d *Deal) checkPrecision(ve *ValidationError) {
	for _, f := range []struct {
		name   string
		v      *decimal.Decimal
		places int32
	}{
		{"regular_price", d.RegularPrice, PricePlaces},
		{"sale_price", d.SalePrice, PricePlaces},
		{"discount_percentage", d.DiscountPercentage, PricePlaces},
		{"quantity", d.Quantity, QuantityPlaces},
	} {
		if f.v != nil && !f.v.Equal(f.v.Round(f.places)) {
			ve.add(f.name, "more than %d decimal places", f.places)
		}
	}
}
