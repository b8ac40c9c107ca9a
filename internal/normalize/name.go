package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanName applies NFKC compatibility folding and collapses runs of
// whitespace, so visually identical names from different markup compare
// equal.
func CleanName(name string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(name)), " ")
}
