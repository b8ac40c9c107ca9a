package normalize

import (
	"strings"

	"github.com/sells-group/grocery-etl/internal/model"
)

type batchKey struct {
	name    string
	storeID int64
}

// Deduper admits the first deal seen for each (name, store) pair within one
// extraction run. Not safe for concurrent use.
type Deduper struct {
	seen map[batchKey]struct{}
}

// NewDeduper returns an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[batchKey]struct{})}
}

// Admit reports whether d is the first deal with its key, recording it.
func (dd *Deduper) Admit(d model.Deal) bool {
	k := batchKey{name: strings.ToLower(strings.TrimSpace(d.ProductName)), storeID: d.StoreID}
	if _, ok := dd.seen[k]; ok {
		return false
	}
	dd.seen[k] = struct{}{}
	return true
}

// Len returns the number of distinct keys admitted.
func (dd *Deduper) Len() int {
	return len(dd.seen)
}

// Dedupe returns deals with later (name, store) repeats removed, preserving
// order.
func Dedupe(deals []model.Deal) []model.Deal {
	dd := NewDeduper()
	out := make([]model.Deal, 0, len(deals))
	for _, d := range deals {
		if dd.Admit(d) {
			out = append(out, d)
		}
	}
	return out
}
