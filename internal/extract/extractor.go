package extract

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Options tune extraction for one source.
type Options struct {
	Format PriceFormat
	Units  []string
	// TextFallback mines dollar amounts from raw item text when no price
	// element resolves, and looks for "was $X" style former prices.
	TextFallback bool
}

// SkipError reports a candidate that carries no usable deal signal. It is
// expected and frequent on heterogeneous markup.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "extract: skipped: " + e.Reason
}

// Result is a resolved candidate, ready for normalization.
type Result struct {
	Name         string
	RegularPrice *decimal.Decimal
	SalePrice    *decimal.Decimal
	Unit         string
	Quantity     *decimal.Decimal
	Discount     *decimal.Decimal
	Description  string
	ImageURL     string
	SourceURL    string
	Category     string
}

// Extractor applies price, unit and discount heuristics to candidates.
type Extractor struct {
	opts  Options
	units *UnitMatcher
}

// New returns an Extractor. A nil unit list selects DefaultUnits.
func New(opts Options) *Extractor {
	if opts.Units == nil {
		opts.Units = DefaultUnits
	}
	return &Extractor{opts: opts, units: NewUnitMatcher(opts.Units)}
}

// Options returns the extractor's configuration.
func (e *Extractor) Options() Options {
	return e.opts
}

// Extract resolves one candidate. It returns a *SkipError when the candidate
// has no name or no sale price.
func (e *Extractor) Extract(c Candidate) (*Result, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return nil, &SkipError{Reason: "missing product name"}
	}

	prices := ResolvePrices(c, e.opts)
	if prices.Sale == nil {
		return nil, &SkipError{Reason: "no sale price"}
	}

	desc := strings.TrimSpace(c.Description)
	unit, qty := e.units.Match(name, desc)

	return &Result{
		Name:         name,
		RegularPrice: prices.Regular,
		SalePrice:    prices.Sale,
		Unit:         unit,
		Quantity:     qty,
		Discount:     Discount(prices.Regular, prices.Sale),
		Description:  desc,
		ImageURL:     strings.TrimSpace(c.ImageURL),
		SourceURL:    strings.TrimSpace(c.SourceURL),
		Category:     strings.TrimSpace(c.Category),
	}, nil
}
