package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceFormat selects how bare numerals in price text are read.
type PriceFormat int

const (
	// PriceDecimal reads "4.99" and "499" literally.
	PriceDecimal PriceFormat = iota
	// PriceCents reads a numeral of 100 or more without a decimal point as
	// hundredths: "$499" is 4.99.
	PriceCents
)

func (f PriceFormat) String() string {
	if f == PriceCents {
		return "cents"
	}
	return "decimal"
}

var (
	priceNumberRe  = regexp.MustCompile(`(\d+\.?\d*)`)
	priceCleaner   = strings.NewReplacer("$", "", ",", "")
	centsThreshold = decimal.NewFromInt(100)
)

// ParsePrice extracts the first numeral from text after stripping currency
// symbols and thousands separators. It reports false when no positive price
// is present.
func ParsePrice(text string, format PriceFormat) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(priceCleaner.Replace(text))
	m := priceNumberRe.FindString(cleaned)
	if m == "" {
		return decimal.Zero, false
	}
	v, ok := parseNumeral(m)
	if !ok {
		return decimal.Zero, false
	}
	if format == PriceCents && !strings.Contains(m, ".") && v.GreaterThanOrEqual(centsThreshold) {
		v = v.Div(centsThreshold)
	}
	return v, true
}

// parseNumeral parses a matched numeral, rejecting zero.
func parseNumeral(m string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(strings.TrimSuffix(m, "."))
	if err != nil || !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}
