package extract

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount returns the percentage saved going from regular to sale, rounded
// half away from zero to two places. It returns nil when either price is
// missing, regular is not positive, sale is not below regular, or the
// rounded result leaves the open interval (0, 100).
func Discount(regular, sale *decimal.Decimal) *decimal.Decimal {
	if regular == nil || sale == nil {
		return nil
	}
	if !regular.IsPositive() || sale.GreaterThanOrEqual(*regular) {
		return nil
	}
	pct := exactDiscount(*regular, *sale).Round(2)
	if !pct.IsPositive() || pct.GreaterThanOrEqual(hundred) {
		return nil
	}
	return &pct
}

func exactDiscount(regular, sale decimal.Decimal) decimal.Decimal {
	return regular.Sub(sale).Div(regular).Mul(hundred)
}

// DiscountConsistent reports whether got matches the discount derived from
// the prices. Two nils are consistent. On an exact half-cent tie the
// half-to-even rounding is accepted as well, which is what records staged by
// float-based tooling carry.
func DiscountConsistent(regular, sale, got *decimal.Decimal) bool {
	want := Discount(regular, sale)
	switch {
	case want == nil && got == nil:
		return true
	case want == nil || got == nil:
		return false
	}
	g := got.Round(2)
	if want.Equal(g) {
		return true
	}
	return g.Equal(exactDiscount(*regular, *sale).RoundBank(2))
}
