// Package fetcher downloads source pages for the deal extractors: politely
// rate limited per host, retried on transient failures, decoded to UTF-8.
package fetcher

import (
	"context"
	"time"
)

// Page is a fetched document with its body decoded to UTF-8.
type Page struct {
	// URL is the final URL after redirects; relative links resolve against it.
	URL        string
	StatusCode int
	Body       []byte
	// Charset is the source encoding the body was decoded from.
	Charset   string
	Block     BlockType
	FetchedAt time.Time
}

// Blocked reports whether the page looks like an anti-bot interstitial
// rather than content.
func (p *Page) Blocked() bool {
	return p.Block != BlockNone
}

// Fetcher retrieves pages.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}
