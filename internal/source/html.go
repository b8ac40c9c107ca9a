package source

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/grocery-etl/internal/extract"
)

// fragmentTags are the elements whose text may carry a price.
const fragmentTags = "span, div, p, strong, del, s"

func parseHTML(body []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "source: parse html")
	}
	return goquery.NewDocumentFromNode(root), nil
}

// stripText concatenates the trimmed text nodes under s, skipping scripts
// and styles.
func stripText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(strings.TrimSpace(n.Data))
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}

// normText is the text of s with whitespace runs collapsed.
func normText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func classOf(s *goquery.Selection) string {
	return s.AttrOr("class", "")
}

// withClass keeps the elements of sel whose class attribute matches re.
func withClass(sel *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return re.MatchString(classOf(s))
	})
}

// innermost drops every element of sel that contains another element of sel,
// so nested product wrappers collapse to the tightest grouping.
func innermost(sel *goquery.Selection) *goquery.Selection {
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("*").FilterSelection(sel).Length() == 0
	})
}

// fragments captures every potentially price-bearing element of item in
// document order.
func fragments(item *goquery.Selection) []extract.Fragment {
	var out []extract.Fragment
	item.Find(fragmentTags).Each(func(_ int, s *goquery.Selection) {
		text := stripText(s)
		if text == "" {
			return
		}
		out = append(out, extract.Fragment{
			Tag:        goquery.NodeName(s),
			Text:       text,
			Style:      s.AttrOr("style", ""),
			Classes:    strings.Fields(classOf(s)),
			ParentText: stripText(s.Parent()),
		})
	})
	return out
}

// resolve makes ref absolute against base. Protocol-relative references get
// https. Empty or unparseable references resolve to "".
func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// firstAttr returns the first non-empty value among attrs on s.
func firstAttr(s *goquery.Selection, attrs ...string) string {
	for _, a := range attrs {
		if v := strings.TrimSpace(s.AttrOr(a, "")); v != "" {
			return v
		}
	}
	return ""
}
