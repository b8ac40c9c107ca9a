package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func span(text string, classes ...string) Fragment {
	return Fragment{Tag: "span", Text: text, Classes: classes}
}

func assertPrices(t *testing.T, got Prices, regular, sale string) {
	t.Helper()
	if regular == "" {
		assert.Nil(t, got.Regular, "regular")
	} else {
		require.NotNil(t, got.Regular, "regular")
		assert.Equal(t, regular, got.Regular.String(), "regular")
	}
	if sale == "" {
		assert.Nil(t, got.Sale, "sale")
	} else {
		require.NotNil(t, got.Sale, "sale")
		assert.Equal(t, sale, got.Sale.String(), "sale")
	}
}

func TestResolvePrices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate Candidate
		opts      Options
		regular   string
		sale      string
	}{
		{
			name: "struck class then sale class",
			candidate: Candidate{Fragments: []Fragment{
				span("$5.99", "was-price"),
				span("$4.99", "sale-price"),
			}},
			regular: "5.99", sale: "4.99",
		},
		{
			name: "line-through style",
			candidate: Candidate{Fragments: []Fragment{
				{Tag: "span", Text: "$3.49", Style: "text-decoration: line-through"},
				span("$2.99", "price"),
			}},
			regular: "3.49", sale: "2.99",
		},
		{
			name: "del element",
			candidate: Candidate{Fragments: []Fragment{
				{Tag: "del", Text: "$8.00"},
				span("$6.00", "price"),
			}},
			regular: "8", sale: "6",
		},
		{
			name: "ambiguous ascending",
			candidate: Candidate{Fragments: []Fragment{
				span("$2.00", "amount"),
				span("$3.00", "amount"),
			}},
			regular: "3", sale: "2",
		},
		{
			name: "ambiguous descending",
			candidate: Candidate{Fragments: []Fragment{
				span("$3.00", "amount"),
				span("$2.00", "amount"),
			}},
			regular: "3", sale: "2",
		},
		{
			name: "inverted labels are swapped",
			candidate: Candidate{Fragments: []Fragment{
				span("4.99", "regular-price"),
				span("5.99", "sale-price"),
			}},
			regular: "5.99", sale: "4.99",
		},
		{
			name: "parent text keywords",
			candidate: Candidate{Fragments: []Fragment{
				{Tag: "span", Text: "7.99", Classes: []string{"amount"}, ParentText: "Was 7.99"},
				{Tag: "span", Text: "5.49", Classes: []string{"amount"}, ParentText: "Now 5.49"},
			}},
			regular: "7.99", sale: "5.49",
		},
		{
			name: "equal prices drop regular",
			candidate: Candidate{Fragments: []Fragment{
				span("$3.00", "strike"),
				span("$3.00", "price"),
			}},
			regular: "", sale: "3",
		},
		{
			name: "regular only rescans item text",
			candidate: Candidate{
				Fragments: []Fragment{{Tag: "del", Text: "$6.00"}},
				Text:      "Bananas $6.00 only 4.50 this week",
			},
			regular: "6", sale: "4.5",
		},
		{
			name: "regular only with nothing cheaper",
			candidate: Candidate{
				Fragments: []Fragment{{Tag: "del", Text: "$6.00"}},
				Text:      "Bananas $6.00",
			},
			regular: "6", sale: "",
		},
		{
			name: "regular only rescan honours cents format",
			candidate: Candidate{
				Fragments: []Fragment{{Tag: "del", Text: "$599"}},
				Text:      "Strawberries $599 $499",
			},
			opts:    Options{Format: PriceCents, TextFallback: true},
			regular: "5.99", sale: "4.99",
		},
		{
			name: "regular only rescan keeps decimal numerals in cents format",
			candidate: Candidate{
				Fragments: []Fragment{{Tag: "del", Text: "$6.49"}},
				Text:      "Blueberries $6.49 now 5.25",
			},
			opts:    Options{Format: PriceCents},
			regular: "6.49", sale: "5.25",
		},
		{
			name: "single price",
			candidate: Candidate{Fragments: []Fragment{
				{Tag: "p", Text: "$1.25 each", Classes: []string{"cost"}},
			}},
			regular: "", sale: "1.25",
		},
		{
			name:      "no price fragments",
			candidate: Candidate{Fragments: []Fragment{span("Fresh today", "badge")}, Text: "Fresh today $4.99"},
			regular:   "", sale: "",
		},
		{
			name: "cents format",
			candidate: Candidate{Fragments: []Fragment{
				span("$699", "compare-at"),
				span("$499", "price"),
			}},
			opts:    Options{Format: PriceCents},
			regular: "6.99", sale: "4.99",
		},
		{
			name:      "text fallback picks two largest amounts",
			candidate: Candidate{Text: "Strip Steak $1299 $999 per lb"},
			opts:      Options{Format: PriceCents, TextFallback: true},
			regular:   "12.99", sale: "9.99",
		},
		{
			name:      "text fallback single amount",
			candidate: Candidate{Text: "Rotisserie Chicken $7.99"},
			opts:      Options{TextFallback: true},
			regular:   "", sale: "7.99",
		},
		{
			name: "text fallback former price phrase",
			candidate: Candidate{
				Fragments: []Fragment{span("$4.99", "price")},
				Text:      "Original Price: $6.49 Sale $4.99",
			},
			opts:    Options{TextFallback: true},
			regular: "6.49", sale: "4.99",
		},
		{
			name: "former price phrase ignored without fallback",
			candidate: Candidate{
				Fragments: []Fragment{span("$4.99", "price")},
				Text:      "Original Price: $6.49 Sale $4.99",
			},
			regular: "", sale: "4.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assertPrices(t, ResolvePrices(tt.candidate, tt.opts), tt.regular, tt.sale)
		})
	}
}

func TestFragmentClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, Fragment{Tag: "s"}.Struck())
	assert.True(t, Fragment{Tag: "del", Style: "text-decoration: none", Classes: []string{"sale"}}.Struck(), "del is struck whatever its styling")
	assert.True(t, span("$1", "compare-price").Struck())
	assert.True(t, Fragment{Tag: "span", Style: "text-decoration: line-through"}.Struck())
	assert.True(t, Fragment{Tag: "div", Classes: []string{"Original-Price"}}.Struck())
	assert.False(t, Fragment{Tag: "p", Classes: []string{"was"}}.Struck())
	assert.False(t, span("$1", "price").Struck())

	assert.True(t, span("$1", "product-price").PriceBearing())
	assert.True(t, Fragment{Tag: "strong", Classes: []string{"money"}}.PriceBearing())
	assert.False(t, Fragment{Tag: "a", Classes: []string{"price"}}.PriceBearing())
	assert.False(t, span("$1", "title").PriceBearing())
}
