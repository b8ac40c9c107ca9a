// Package identity derives deterministic, content-based deal identifiers.
package identity

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namespace is the fixed UUIDv5 namespace for deal identities.
var Namespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

const dateLayout = "2006-01-02"

// Key returns the canonical string hashed into a deal identity.
func Key(productName string, storeID int64, validFrom, validTo time.Time) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(productName)))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(storeID, 10))
	b.WriteByte(':')
	b.WriteString(validFrom.Format(dateLayout))
	b.WriteByte(':')
	b.WriteString(validTo.Format(dateLayout))
	return b.String()
}

// DealID returns the UUIDv5 identity for a deal. Names differing only in
// case or surrounding whitespace yield the same identity.
func DealID(productName string, storeID int64, validFrom, validTo time.Time) string {
	return uuid.NewSHA1(Namespace, []byte(Key(productName, storeID, validFrom, validTo))).String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
