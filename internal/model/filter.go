package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultListLimit caps deal listings when no limit is given.
const DefaultListLimit = 100

// DealFilter narrows a deal listing. Zero values mean "no constraint".
type DealFilter struct {
	StoreID      *int64
	CategoryID   *int64
	MinDiscount  *decimal.Decimal
	MinSalePrice *decimal.Decimal
	MaxSalePrice *decimal.Decimal
	// ActiveFrom and ActiveTo select deals whose window overlaps [ActiveFrom, ActiveTo].
	ActiveFrom *time.Time
	ActiveTo   *time.Time
	Search     string
	Limit      int
	Offset     int
}

// EffectiveLimit returns Limit, or DefaultListLimit when unset.
func (f DealFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Stats summarizes the persisted deals.
type Stats struct {
	TotalDeals       int64            `json:"total_deals"`
	UniqueStores     int64            `json:"unique_stores"`
	UniqueCategories int64            `json:"unique_categories"`
	AvgDiscount      *decimal.Decimal `json:"avg_discount,omitempty"`
	AvgSalePrice     *decimal.Decimal `json:"avg_sale_price,omitempty"`
	EarliestDeal     *time.Time       `json:"earliest_deal,omitempty"`
	LatestDeal       *time.Time       `json:"latest_deal,omitempty"`
}

// StoreUpdate holds optional store attribute changes. Nil fields are left
// untouched.
type StoreUpdate struct {
	Name     *string
	Location *string
	Website  *string
}

// Empty reports whether the update changes nothing.
func (u StoreUpdate) Empty() bool {
	return u.Name == nil && u.Location == nil && u.Website == nil
}
