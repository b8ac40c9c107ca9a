package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Prices is the outcome of price-role resolution.
type Prices struct {
	Regular *decimal.Decimal
	Sale    *decimal.Decimal
}

var (
	regularVocabulary = []string{"regular", "original", "was", "list", "before", "compare", "strike"}
	saleVocabulary    = []string{"sale", "discount", "now", "special", "deal", "price", "current"}

	textNumeralRe  = regexp.MustCompile(`\$?\s*(\d+\.?\d*)`)
	dollarAmountRe = regexp.MustCompile(`\$(\d+\.?\d*)`)
	formerPriceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)original\s+price:?\s*\$(\d+\.?\d*)`),
		regexp.MustCompile(`(?i)was\s+\$(\d+\.?\d*)`),
		regexp.MustCompile(`(?i)compare\s+at:?\s*\$(\d+\.?\d*)`),
		regexp.MustCompile(`(?i)list\s+price:?\s*\$(\d+\.?\d*)`),
	}
)

func mentionsAny(markers []string, vocabulary []string) bool {
	for _, m := range markers {
		for _, w := range vocabulary {
			if strings.Contains(m, w) {
				return true
			}
		}
	}
	return false
}

// ResolvePrices assigns regular and sale roles to the price fragments of a
// candidate.
//
// Struck fragments are consulted first and the first valid price among them
// is the regular price. The remaining price-bearing fragments are then
// classified by keyword against their classes and parent text. A fragment
// matching neither vocabulary becomes the sale price when none is set yet;
// otherwise the larger of it and the current sale becomes regular. A lone
// regular price triggers a rescan of the item text for the first smaller
// numeral. As a last resort the first generic price element is the sale
// price. Finally an inverted pair is swapped and an equal pair loses its
// regular price.
func ResolvePrices(c Candidate, opts Options) Prices {
	var regular, sale *decimal.Decimal

	for _, f := range c.Fragments {
		if !f.Struck() {
			continue
		}
		if v, ok := ParsePrice(f.Text, opts.Format); ok {
			regular = &v
			break
		}
	}

	for _, f := range c.Fragments {
		if f.Struck() || !f.PriceBearing() {
			continue
		}
		v, ok := ParsePrice(f.Text, opts.Format)
		if !ok {
			continue
		}

		markers := []string{f.classString(), strings.ToLower(f.ParentText)}
		isRegular := mentionsAny(markers, regularVocabulary)
		isSale := mentionsAny(markers, saleVocabulary)

		switch {
		case isRegular && regular == nil:
			regular = &v
		case isSale && sale == nil:
			sale = &v
		case !isRegular && !isSale:
			if sale == nil {
				sale = &v
			} else if regular == nil {
				if v.GreaterThan(*sale) {
					regular = &v
				} else {
					regular, sale = sale, &v
				}
			}
		}
	}

	if regular != nil && sale == nil {
		for _, m := range textNumeralRe.FindAllStringSubmatch(c.Text, -1) {
			v, ok := ParsePrice(m[0], opts.Format)
			if ok && v.LessThan(*regular) {
				sale = &v
				break
			}
		}
	}

	if regular == nil && sale == nil {
		for _, f := range c.Fragments {
			if !f.genericPrice() {
				continue
			}
			if v, ok := ParsePrice(f.Text, opts.Format); ok {
				sale = &v
			}
			break
		}
	}

	if opts.TextFallback {
		regular, sale = textFallback(c.Text, opts.Format, regular, sale)
	}

	return settle(regular, sale)
}

// textFallback mines dollar amounts from the raw item text when markup gave
// no usable price, then looks for an explicit former price phrase.
func textFallback(text string, format PriceFormat, regular, sale *decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	if regular == nil && sale == nil {
		var amounts []decimal.Decimal
		for _, m := range dollarAmountRe.FindAllStringSubmatch(text, -1) {
			v, ok := ParsePrice("$"+m[1], format)
			if !ok || containsDecimal(amounts, v) {
				continue
			}
			amounts = append(amounts, v)
		}
		sort.Slice(amounts, func(i, j int) bool { return amounts[i].GreaterThan(amounts[j]) })
		switch {
		case len(amounts) >= 2:
			regular, sale = &amounts[0], &amounts[1]
		case len(amounts) == 1:
			sale = &amounts[0]
		}
	}

	if sale != nil && regular == nil {
		for _, re := range formerPriceRes {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if v, ok := ParsePrice("$"+m[1], format); ok && v.GreaterThan(*sale) {
				regular = &v
				break
			}
		}
	}
	return regular, sale
}

// settle swaps an inverted pair and drops a regular price equal to the sale.
func settle(regular, sale *decimal.Decimal) Prices {
	if regular != nil && sale != nil {
		switch {
		case sale.GreaterThan(*regular):
			regular, sale = sale, regular
		case sale.Equal(*regular):
			regular = nil
		}
	}
	return Prices{Regular: regular, Sale: sale}
}

func containsDecimal(ds []decimal.Decimal, v decimal.Decimal) bool {
	for _, d := range ds {
		if d.Equal(v) {
			return true
		}
	}
	return false
}
