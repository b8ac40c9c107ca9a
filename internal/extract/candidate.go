// Package extract turns loosely structured product markup into typed deal
// fields: sale and regular price, unit and quantity, and discount.
package extract

import (
	"regexp"
	"strings"
)

// Fragment is one text-bearing element inside a product candidate, with the
// structural hints the price heuristics key off.
type Fragment struct {
	Tag        string   // lowercase element name, e.g. "span"
	Text       string   // element text, whitespace trimmed
	Style      string   // inline style attribute
	Classes    []string // class-like labels
	ParentText string   // text of the enclosing element
}

// Candidate is a raw, not-yet-validated product grouping produced by a
// source adapter.
type Candidate struct {
	Name        string
	Fragments   []Fragment
	Text        string // all text inside the product container
	Description string
	ImageURL    string
	SourceURL   string
	Category    string
}

var (
	strikeStyleRe   = regexp.MustCompile(`(?i)line-through|text-decoration.*line`)
	strikeClassRe   = regexp.MustCompile(`(?i)strike|original|was|regular|list|compare`)
	priceClassRe    = regexp.MustCompile(`(?i)price|cost|amount|money`)
	fallbackClassRe = regexp.MustCompile(`(?i)price|cost`)
)

func (f Fragment) classString() string {
	return strings.ToLower(strings.Join(f.Classes, " "))
}

func (f Fragment) tagIn(tags ...string) bool {
	for _, t := range tags {
		if f.Tag == t {
			return true
		}
	}
	return false
}

// Struck reports whether the fragment is visually marked as a former price:
// strikethrough markup, a line-through style, or a "was/original" class.
func (f Fragment) Struck() bool {
	if f.tagIn("del", "s") {
		return true
	}
	if f.tagIn("span", "div") && strikeStyleRe.MatchString(f.Style) {
		return true
	}
	return f.tagIn("span", "div") && strikeClassRe.MatchString(f.classString())
}

// PriceBearing reports whether the fragment's classes mark it as a price.
func (f Fragment) PriceBearing() bool {
	return f.tagIn("span", "div", "p", "strong") && priceClassRe.MatchString(f.classString())
}

func (f Fragment) genericPrice() bool {
	return f.tagIn("span", "div", "p") && fallbackClassRe.MatchString(f.classString())
}
