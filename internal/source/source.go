// Package source adapts retailer web pages into extraction candidates. Each
// adapter knows where a store publishes its deals and how its markup groups
// a product's name, prices and links.
package source

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grocery-etl/internal/extract"
	"github.com/sells-group/grocery-etl/internal/fetcher"
	"github.com/sells-group/grocery-etl/internal/model"
	"github.com/sells-group/grocery-etl/internal/normalize"
)

// Listing is one fetched page of product candidates.
type Listing struct {
	URL    string
	Window normalize.WindowPolicy
	// DescriptionFallback fills deals whose candidate has no description.
	DescriptionFallback string
	Candidates          []extract.Candidate
}

// Source collects candidate listings for one retailer.
type Source interface {
	// Name is the registry key, e.g. "hmart".
	Name() string
	// Store is the retailer the deals belong to.
	Store() model.Store
	// Bucket is the staging bucket the deals are written under.
	Bucket() string
	Options() extract.Options
	Collect(ctx context.Context, f fetcher.Fetcher) ([]Listing, error)
}

// Factory builds a source. A non-empty url replaces the default entry page.
type Factory func(url string) Source

var registry = map[string]Factory{
	HmartName:        func(url string) Source { return NewHmart(url) },
	StewLeonardsName: func(url string) Source { return NewStewLeonards(url) },
}

// Names lists the registered sources, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the named source. Names are matched case-insensitively and
// "-" is accepted for "_".
func Lookup(name, url string) (Source, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	f, ok := registry[key]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return f(url), nil
}

// All returns every registered source with its default entry page.
func All() []Source {
	var out []Source
	for _, n := range Names() {
		out = append(out, registry[n](""))
	}
	return out
}
