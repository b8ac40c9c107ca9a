package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/grocery-etl/internal/extract"
	"github.com/sells-group/grocery-etl/internal/fetcher"
	"github.com/sells-group/grocery-etl/internal/model"
	"github.com/sells-group/grocery-etl/internal/normalize"
)

const (
	StewLeonardsName = "stew_leonards"
	StewBaseURL      = "https://stewleonards.com"
	StewShopURL      = "https://shopnow.stewleonards.com"
	// StewDefaultStoreURL is the Yonkers location page, which links to the
	// current weekly specials collection.
	StewDefaultStoreURL = StewBaseURL + "/stew-leonards-locations/yonkers-store/"
)

var (
	stewProductLink = regexp.MustCompile(`(?i)/products?\b`)
	stewCardClass   = regexp.MustCompile(`(?i)product|item|card|deal|special`)
	stewGridClass   = regexp.MustCompile(`(?i)grid|products|specials|deals`)
	stewNameClass   = regexp.MustCompile(`(?i)title|name|product`)
	stewLabelClass  = regexp.MustCompile(`(?i)name|title|heading`)
	stewDescClass   = regexp.MustCompile(`(?i)desc|description|summary|excerpt`)
	stewShopAllText = regexp.MustCompile(`(?i)shop.*all.*weekly.*special`)
	numeralRe       = regexp.MustCompile(`\$?\d+\.?\d*`)
	leadingPriceRe  = regexp.MustCompile(`^\$?\d+`)
)

// StewLeonards scrapes the weekly specials collection of Stew Leonard's
// Shopify storefront. Its prices are often rendered in cents ("$799").
type StewLeonards struct {
	entry string
	shop  string
	now   func() time.Time
}

// NewStewLeonards returns the Stew Leonard's source. url may be a location
// page, whose weekly specials link is followed, or a specials collection
// page scraped directly. Empty means the Yonkers location.
func NewStewLeonards(url string) *StewLeonards {
	if url == "" {
		url = StewDefaultStoreURL
	}
	return &StewLeonards{entry: url, shop: StewShopURL, now: time.Now}
}

func (s *StewLeonards) Name() string   { return StewLeonardsName }
func (s *StewLeonards) Bucket() string { return StewLeonardsName }

func (s *StewLeonards) Store() model.Store {
	return model.Store{Name: "Stew Leonard's", Website: StewBaseURL}
}

func (s *StewLeonards) Options() extract.Options {
	return extract.Options{Format: extract.PriceCents, Units: extract.ExtendedUnits, TextFallback: true}
}

func (s *StewLeonards) Collect(ctx context.Context, f fetcher.Fetcher) ([]Listing, error) {
	log := zap.L().With(zap.String("source", StewLeonardsName))

	target := s.entry
	if strings.Contains(target, "/stew-leonards-locations/") {
		target = s.findSpecials(ctx, f, target)
		log.Info("weekly specials page", zap.String("url", target))
	}

	page, err := f.Fetch(ctx, target)
	if err != nil {
		return nil, eris.Wrap(err, "stew leonards: fetch specials")
	}
	l, err := s.parse(page)
	if err != nil {
		return nil, err
	}
	if len(l.Candidates) == 0 {
		log.Warn("no product containers found", zap.String("url", page.URL), zap.Int("bytes", len(page.Body)))
	}
	return []Listing{l}, nil
}

func isSpecialsHref(href string) bool {
	h := strings.ToLower(href)
	return strings.Contains(h, "collections") && strings.Contains(h, "weekly-specials")
}

// findSpecials locates the weekly specials collection linked from a location
// page: its canonical link, then anchors into the storefront, then a
// collection URL computed from the current two-week ad cycle.
func (s *StewLeonards) findSpecials(ctx context.Context, f fetcher.Fetcher, storePage string) string {
	page, err := f.Fetch(ctx, storePage)
	if err != nil {
		zap.L().Warn("stew leonards: location page unavailable, computing specials url",
			zap.String("url", storePage), zap.Error(err))
	} else if doc, err := parseHTML(page.Body); err == nil {
		if href := s.specialsLink(doc); href != "" {
			return href
		}
	}

	week := normalize.CurrentWeek(s.now()).From
	current := s.collectionURL(week)
	page, err = f.Fetch(ctx, current)
	if err != nil {
		return current
	}
	if doc, err := parseHTML(page.Body); err == nil {
		if strings.Contains(strings.ToLower(doc.Find("title").First().Text()), "weekly special") {
			return current
		}
	}
	return s.collectionURL(week.AddDate(0, 0, -7))
}

func (s *StewLeonards) specialsLink(doc *goquery.Document) string {
	if href := doc.Find(`link[rel="canonical"]`).AttrOr("href", ""); isSpecialsHref(href) {
		return href
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		text := strings.ToLower(normText(a))
		storefront := strings.Contains(href, "shopnow.stewleonards.com") || strings.HasPrefix(href, "/store/")
		labelled := strings.Contains(text, "weekly") && (strings.Contains(text, "special") || strings.Contains(text, "ad"))

		switch {
		case storefront && isSpecialsHref(href):
			found = s.link(href)
		case (labelled || stewShopAllText.MatchString(text)) &&
			isSpecialsHref(href) && !strings.Contains(strings.ToLower(href), "storefront"):
			found, _, _ = strings.Cut(s.link(href), "?")
		}
		return found == ""
	})
	return found
}

// collectionURL is the specials collection for the two-week cycle starting
// on the given Sunday.
func (s *StewLeonards) collectionURL(start time.Time) string {
	end := start.AddDate(0, 0, 13)
	return fmt.Sprintf("%s/store/stew-leonards/collections/rc-weekly-specials-%d-%d-%d-%d",
		s.shop, int(start.Month()), start.Day(), int(end.Month()), end.Day())
}

// link resolves an href found on Stew Leonard's pages. Product and /store/
// paths live on the Shopify storefront; other root paths on the main site.
func (s *StewLeonards) link(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/store/"), strings.HasPrefix(href, "/") && stewProductLink.MatchString(href):
		return s.shop + href
	case strings.HasPrefix(href, "/"):
		return StewBaseURL + href
	default:
		return s.shop + "/" + href
	}
}

func (s *StewLeonards) image(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "", strings.HasPrefix(href, "data:"):
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return s.shop + href
	default:
		return s.shop + "/" + href
	}
}

func (s *StewLeonards) parse(page *fetcher.Page) (Listing, error) {
	doc, err := parseHTML(page.Body)
	if err != nil {
		return Listing{}, err
	}

	l := Listing{URL: page.URL, Window: normalize.WindowWeekly}
	discoverStewItems(doc).Each(func(_ int, item *goquery.Selection) {
		name := stewName(item)
		if name == "" {
			return
		}
		link := item.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
			return stewProductLink.MatchString(a.AttrOr("href", ""))
		}).First()
		if link.Length() == 0 {
			link = item.Find("a[href]").First()
		}
		img := item.Find("img").First()

		l.Candidates = append(l.Candidates, extract.Candidate{
			Name:        name,
			Fragments:   fragments(item),
			Text:        item.Text(),
			Description: stewDescription(item),
			SourceURL:   s.link(link.AttrOr("href", "")),
			ImageURL:    s.image(firstAttr(img, "src", "data-src", "data-lazy-src", "data-original", "data-image")),
		})
	})
	return l, nil
}

func mentions(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// chrome reports page furniture that must never be taken for a product.
func chrome(s *goquery.Selection, extra ...string) bool {
	text := strings.ToLower(stripText(s))
	return mentions(text, append([]string{"cookie", "consent"}, extra...)...)
}

// discoverStewItems tries progressively looser strategies for finding
// product containers and returns the first that yields any.
func discoverStewItems(doc *goquery.Document) *goquery.Selection {
	// Containers of product links.
	seen := map[*html.Node]bool{}
	var nodes []*html.Node
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if !strings.Contains(strings.ToLower(a.AttrOr("href", "")), "/products/") {
			return
		}
		c := a.Parent().Closest("div, article, li, section")
		if c.Length() == 0 || seen[c.Get(0)] || chrome(c, "announcement") {
			return
		}
		seen[c.Get(0)] = true
		nodes = append(nodes, c.Get(0))
	})
	if len(nodes) > 0 {
		return doc.FindNodes(nodes...)
	}

	if items := doc.Find("[data-product]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !chrome(s)
	}); items.Length() > 0 {
		return items
	}

	if items := withClass(doc.Find("div, article, li"), stewCardClass).FilterFunction(func(_ int, s *goquery.Selection) bool {
		cls := strings.ToLower(classOf(s))
		return !chrome(s, "announcement", "banner") && !mentions(cls, "cookie", "consent") &&
			numeralRe.MatchString(s.Text())
	}); items.Length() > 0 {
		return items
	}

	if grid := withClass(doc.Find("div, section"), stewGridClass).First(); grid.Length() > 0 {
		if items := grid.Find("div, article, li").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return !chrome(s, "announcement")
		}); items.Length() > 0 {
			return items
		}
	}

	return doc.Find("div, article, li, section").FilterFunction(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		return numeralRe.MatchString(text) && len(text) < 500 &&
			!mentions(strings.ToLower(text), "cookie", "consent", "privacy", "policy")
	})
}

// priceish reports text or classes that belong to a price label rather than
// a product name.
func priceish(s *goquery.Selection, checkClass bool, strict bool) bool {
	raw := stripText(s)
	text := strings.ToLower(raw)
	if checkClass && mentions(strings.ToLower(classOf(s)), "price", "cost") {
		return true
	}
	if strings.Contains(raw, "$") || mentions(text, "price", "estimated") {
		return true
	}
	return strict && strings.Contains(text, "est.")
}

// stewName picks the product name element by priority and cleans its text.
func stewName(item *goquery.Selection) string {
	headings := item.Find("h2, h3, h4, h5, h6")

	candidates := []func() *goquery.Selection{
		func() *goquery.Selection {
			return item.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
				return stewProductLink.MatchString(a.AttrOr("href", ""))
			}).First()
		},
		func() *goquery.Selection {
			return headings.FilterFunction(func(_ int, h *goquery.Selection) bool {
				return !priceish(h, true, true)
			}).First()
		},
		func() *goquery.Selection {
			return withClass(item.Find("h2, h3, h4, h5, a"), stewNameClass).FilterFunction(func(_ int, c *goquery.Selection) bool {
				return !priceish(c, true, true)
			}).First()
		},
		func() *goquery.Selection {
			return headings.FilterFunction(func(_ int, h *goquery.Selection) bool {
				return !priceish(h, false, false)
			}).First()
		},
		func() *goquery.Selection {
			return withClass(item.Find("span, div"), stewLabelClass).FilterFunction(func(_ int, c *goquery.Selection) bool {
				return !priceish(c, true, false)
			}).First()
		},
	}

	for _, pick := range candidates {
		el := pick()
		if el.Length() == 0 {
			continue
		}
		var raw string
		if goquery.NodeName(el) == "a" {
			raw = firstAttr(el, "title", "aria-label")
		}
		if raw == "" {
			raw = normText(el)
		}
		return CleanStewName(raw)
	}
	return ""
}

var (
	stewNamePrefixes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^/lb\s*Save\s+`),
		regexp.MustCompile(`(?i)^/lbSave\s*`),
		regexp.MustCompile(`(?i)^lb\s*Save\s+`),
		regexp.MustCompile(`(?i)^lbSave\s*`),
		regexp.MustCompile(`^/lb\s*`),
		regexp.MustCompile(`(?i)^lb\s*`),
		regexp.MustCompile(`(?i)^Save\s+`),
		regexp.MustCompile(`(?i)^low\s+carb\s*`),
		regexp.MustCompile(`^\s+`),
		regexp.MustCompile(`(?i)\s+Save\s*$`),
		regexp.MustCompile(`^[/\-]\s*`),
	}
	stewNameArtefacts = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\$?\d+\.?\d*\s*(per\s+)?(pound|lb|oz|each|pack|ct|count|pcs|pk|pkg)\b`),
		regexp.MustCompile(`(?i)current\s+price:?\s*\$?\d+\.?\d*`),
		regexp.MustCompile(`(?i)original\s+price:?\s*\$?\d+\.?\d*`),
		regexp.MustCompile(`(?i)\(estimated\)`),
		regexp.MustCompile(`(?i)\(est\.\)`),
		regexp.MustCompile(`\$?\d+\.?\d*`),
	}
	stewNameTrailing = []*regexp.Regexp{
		regexp.MustCompile(`^[/\-]\s*`),
		regexp.MustCompile(`(?i)^lbsave\s*`),
		regexp.MustCompile(`(?i)^lb\s*save\s*`),
		regexp.MustCompile(`(?i)^lb\s*`),
		regexp.MustCompile(`(?i)^save\s*`),
	}
	stewRejectPrefixes = []string{"current price", "original price", "estimated", "per package", "per pack"}
)

// CleanStewName strips the unit-price and "Save" residue Stew Leonard's
// renders around product names. It returns "" when nothing name-like is left.
func CleanStewName(raw string) string {
	name := raw
	for _, re := range stewNamePrefixes {
		name = re.ReplaceAllString(name, "")
	}
	for _, re := range stewNameArtefacts {
		name = re.ReplaceAllString(name, "")
	}
	name = strings.Join(strings.Fields(name), " ")

	lower := strings.ToLower(name)
	for _, p := range stewRejectPrefixes[:3] {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}
	if len(name) < 3 {
		return ""
	}

	for _, re := range stewNameTrailing {
		name = re.ReplaceAllString(name, "")
	}
	name = strings.TrimSpace(name)

	lower = strings.ToLower(name)
	for _, p := range stewRejectPrefixes {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}
	if strings.Contains(lower, "current price:") || strings.Contains(lower, "original price:") || len(name) < 3 {
		return ""
	}
	return name
}

func stewDescription(item *goquery.Selection) string {
	if d := stripText(withClass(item.Find("p, div, span"), stewDescClass).First()); d != "" {
		return d
	}
	var desc string
	item.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := stripText(p)
		if len(t) > 20 && !leadingPriceRe.MatchString(t) {
			desc = t
			return false
		}
		return true
	})
	return desc
}
