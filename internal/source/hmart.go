package source

import (
	"context"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grocery-etl/internal/extract"
	"github.com/sells-group/grocery-etl/internal/fetcher"
	"github.com/sells-group/grocery-etl/internal/model"
	"github.com/sells-group/grocery-etl/internal/normalize"
)

const (
	HmartName    = "hmart"
	HmartBaseURL = "https://www.hmart.com"
)

// hmartPage describes one Hmart deals page and how its products are marked up.
type hmartPage struct {
	path       string
	window     normalize.WindowPolicy
	containers *regexp.Regexp
	nameTags   string
	names      *regexp.Regexp
	// fallback is the description for every deal on the page; when set the
	// page's own descriptions and categories are not read.
	fallback string
}

var (
	hmartWeekly = hmartPage{
		path:       "/weekly-ads",
		window:     normalize.WindowWeekly,
		containers: regexp.MustCompile(`(?i)product|deal|item`),
		nameTags:   "h2, h3, h4, a, span",
		names:      regexp.MustCompile(`(?i)title|name|product`),
	}
	hmartFlash = hmartPage{
		path:       "/flash-sale",
		window:     normalize.WindowFlash,
		containers: regexp.MustCompile(`(?i)product|deal|item|flash`),
		nameTags:   "h2, h3, h4, a",
		names:      regexp.MustCompile(`(?i)title|name`),
		fallback:   "Flash Sale Item",
	}

	hmartProductLink = regexp.MustCompile(`(?i)/product|/item`)
	hmartDescription = regexp.MustCompile(`(?i)desc|description`)
	hmartCategory    = regexp.MustCompile(`(?i)category|tag`)
)

// Hmart scrapes the weekly ad and flash sale pages of www.hmart.com.
type Hmart struct {
	base     string
	override string
}

// NewHmart returns the Hmart source. A non-empty url is scraped as a weekly
// ad page instead of the default pages.
func NewHmart(url string) *Hmart {
	return &Hmart{base: HmartBaseURL, override: url}
}

func (h *Hmart) Name() string   { return HmartName }
func (h *Hmart) Bucket() string { return HmartName }

func (h *Hmart) Store() model.Store {
	return model.Store{Name: "Hmart", Website: HmartBaseURL}
}

func (h *Hmart) Options() extract.Options {
	return extract.Options{Format: extract.PriceDecimal, Units: extract.DefaultUnits}
}

// Collect fetches each deals page. A page that fails to load is logged and
// skipped; Collect fails only when every page does.
func (h *Hmart) Collect(ctx context.Context, f fetcher.Fetcher) ([]Listing, error) {
	log := zap.L().With(zap.String("source", HmartName))

	type target struct {
		url  string
		page hmartPage
	}
	targets := []target{
		{h.base + hmartWeekly.path, hmartWeekly},
		{h.base + hmartFlash.path, hmartFlash},
	}
	if h.override != "" {
		targets = []target{{h.override, hmartWeekly}}
	}

	var (
		listings []Listing
		lastErr  error
	)
	for _, t := range targets {
		page, err := f.Fetch(ctx, t.url)
		if err != nil {
			log.Warn("page fetch failed", zap.String("url", t.url), zap.Error(err))
			lastErr = err
			continue
		}
		l, err := h.parse(page, t.page)
		if err != nil {
			log.Warn("page parse failed", zap.String("url", t.url), zap.Error(err))
			lastErr = err
			continue
		}
		log.Info("page collected", zap.String("url", page.URL), zap.Int("candidates", len(l.Candidates)))
		listings = append(listings, l)
	}
	if len(listings) == 0 && lastErr != nil {
		return nil, eris.Wrap(lastErr, "hmart: no pages collected")
	}
	return listings, nil
}

func (h *Hmart) parse(page *fetcher.Page, p hmartPage) (Listing, error) {
	doc, err := parseHTML(page.Body)
	if err != nil {
		return Listing{}, err
	}
	base, _ := url.Parse(page.URL)

	nameOf := func(s *goquery.Selection) *goquery.Selection {
		n := withClass(s.Find(p.nameTags), p.names).First()
		if n.Length() == 0 {
			n = s.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
				return hmartProductLink.MatchString(a.AttrOr("href", ""))
			}).First()
		}
		return n
	}

	items := withClass(doc.Find("div, article, li"), p.containers).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return nameOf(s).Length() > 0
	})
	if items.Length() == 0 {
		items = doc.Find("div[data-product]")
	}
	items = innermost(items)

	l := Listing{URL: page.URL, Window: p.window, DescriptionFallback: p.fallback}
	items.Each(func(_ int, item *goquery.Selection) {
		c := extract.Candidate{
			Name:      normText(nameOf(item)),
			Fragments: fragments(item),
			Text:      item.Text(),
			SourceURL: resolve(base, item.Find("a[href]").First().AttrOr("href", "")),
			ImageURL:  hmartImage(base, item),
		}
		if p.fallback == "" {
			c.Description = stripText(withClass(item.Find("p, div, span"), hmartDescription).First())
			c.Category = stripText(withClass(item.Find("a, span"), hmartCategory).First())
		}
		l.Candidates = append(l.Candidates, c)
	})
	return l, nil
}

// hmartImage finds the item's image. When the product grouping holds only
// text, a lone image sitting directly in the enclosing element is used.
func hmartImage(base *url.URL, item *goquery.Selection) string {
	img := item.Find("img").First()
	if img.Length() == 0 {
		if up := item.Parent().ChildrenFiltered("img"); up.Length() == 1 {
			img = up
		}
	}
	return resolve(base, firstAttr(img, "src", "data-src"))
}
