package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		format PriceFormat
		want   string
		ok     bool
	}{
		{"dollar sign", "$4.99", PriceDecimal, "4.99", true},
		{"thousands separator", "$1,299.50", PriceDecimal, "1299.5", true},
		{"surrounding words", "Now only $3.49/lb", PriceDecimal, "3.49", true},
		{"first numeral wins", "2 for $5", PriceDecimal, "2", true},
		{"integer", "499", PriceDecimal, "499", true},
		{"trailing dot", "$7.", PriceDecimal, "7", true},
		{"no digits", "call for price", PriceDecimal, "0", false},
		{"zero", "$0.00", PriceDecimal, "0", false},
		{"cents integer", "$499", PriceCents, "4.99", true},
		{"cents keeps decimals", "$4.99", PriceCents, "4.99", true},
		{"cents below threshold", "$99", PriceCents, "99", true},
		{"cents large", "$1,299", PriceCents, "12.99", true},
		{"cents with explicit point", "$129.00", PriceCents, "129", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParsePrice(tt.text, tt.format)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestPriceFormatString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "decimal", PriceDecimal.String())
	assert.Equal(t, "cents", PriceCents.String())
}
