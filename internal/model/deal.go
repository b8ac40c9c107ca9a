package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for validity windows.
const DateLayout = "2006-01-02"

// Decimal places kept for money and percentages, and for quantities.
const (
	PricePlaces    = 2
	QuantityPlaces = 3
)

// Store is a grocery retailer. Name is unique.
type Store struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	Website   string    `json:"website,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Category is a product classification node. Categories form a forest via
// ParentCategoryID.
type Category struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	ParentCategoryID *int64    `json:"parent_category_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Deal is a single promotional price for a product at a store during a
// validity window.
type Deal struct {
	ID                 int64            `json:"id,omitempty"`
	UUID               string           `json:"uuid"`
	StoreID            int64            `json:"store_id"`
	ProductName        string           `json:"product_name"`
	CategoryID         *int64           `json:"category_id,omitempty"`
	RegularPrice       *decimal.Decimal `json:"regular_price,omitempty"`
	SalePrice          *decimal.Decimal `json:"sale_price,omitempty"`
	Unit               string           `json:"unit,omitempty"`
	Quantity           *decimal.Decimal `json:"quantity,omitempty"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
	ValidFrom          time.Time        `json:"valid_from"`
	ValidTo            time.Time        `json:"valid_to"`
	SourceURL          string           `json:"source_url,omitempty"`
	ImageURL           string           `json:"image_url,omitempty"`
	Description        string           `json:"description,omitempty"`
	CreatedAt          *time.Time       `json:"created_at,omitempty"`
	UpdatedAt          *time.Time       `json:"updated_at,omitempty"`

	// Populated by read paths that join the referenced rows, and by staged
	// records that carry reference snapshots.
	Store    *Store    `json:"store,omitempty"`
	Category *Category `json:"category,omitempty"`
}

// Date truncates t to a UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Active reports whether the deal's window covers the given day.
func (d *Deal) Active(day time.Time) bool {
	day = Date(day)
	return !day.Before(Date(d.ValidFrom)) && !day.After(Date(d.ValidTo))
}

// Quantize rounds prices to cents and quantity to QuantityPlaces. A regular
// price that rounds onto the sale price is dropped. Callers derive the
// discount afterwards so it agrees with the stored prices.
func (d *Deal) Quantize() {
	d.RegularPrice = roundTo(d.RegularPrice, PricePlaces)
	d.SalePrice = roundTo(d.SalePrice, PricePlaces)
	d.Quantity = roundTo(d.Quantity, QuantityPlaces)
	if d.RegularPrice != nil && d.SalePrice != nil && d.RegularPrice.Equal(*d.SalePrice) {
		d.RegularPrice = nil
	}
}

func roundTo(v *decimal.Decimal, places int32) *decimal.Decimal {
	if v == nil {
		return nil
	}
	r := v.Round(places)
	return &r
}

// Dec returns a pointer to d. Convenience for optional decimal fields.
func Dec(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// ID64 returns a pointer to id.
func ID64(id int64) *int64 {
	return &id
}
