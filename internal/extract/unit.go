package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultUnits is the unit vocabulary in match priority order.
var DefaultUnits = []string{"lb", "lbs", "oz", "oz.", "g", "kg", "each", "pack", "ct", "count", "pcs"}

// ExtendedUnits adds package abbreviations used by some stores.
var ExtendedUnits = append(append([]string(nil), DefaultUnits...), "pk", "pkg")

type unitPattern struct {
	unit string
	re   *regexp.Regexp
}

// UnitMatcher finds "<number> <unit>" pairs in product text.
type UnitMatcher struct {
	patterns []unitPattern
}

// NewUnitMatcher compiles one pattern per unit, preserving priority order.
func NewUnitMatcher(units []string) *UnitMatcher {
	m := &UnitMatcher{patterns: make([]unitPattern, 0, len(units))}
	for _, u := range units {
		m.patterns = append(m.patterns, unitPattern{
			unit: strings.TrimSuffix(u, "."),
			re:   regexp.MustCompile(`(\d+\.?\d*)\s*` + regexp.QuoteMeta(u) + `\b`),
		})
	}
	return m
}

// Match scans lower("name description") and returns the first unit, in
// vocabulary order, that follows a number. It returns "" and nil on no match.
func (m *UnitMatcher) Match(name, description string) (string, *decimal.Decimal) {
	text := strings.ToLower(name + " " + description)
	for _, p := range m.patterns {
		sub := p.re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		q, err := decimal.NewFromString(strings.TrimSuffix(sub[1], "."))
		if err != nil {
			continue
		}
		return p.unit, &q
	}
	return "", nil
}

// ExtractUnit is a one-shot form of UnitMatcher.Match.
func ExtractUnit(name, description string, units []string) (string, *decimal.Decimal) {
	return NewUnitMatcher(units).Match(name, description)
}
