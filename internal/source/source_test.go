package source

import (
	"context"
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grocery-etl/internal/fetcher"
)

// fakeFetcher serves canned bodies by URL and fails for anything else.
type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, u string) (*fetcher.Page, error) {
	f.calls = append(f.calls, u)
	body, ok := f.pages[u]
	if !ok {
		return nil, eris.Errorf("fake: no page for %s", u)
	}
	return &fetcher.Page{URL: u, StatusCode: 200, Body: []byte(body)}, nil
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestLookup(t *testing.T) {
	s, err := Lookup("HMART", "")
	require.NoError(t, err)
	assert.Equal(t, HmartName, s.Name())

	s, err = Lookup("stew-leonards", "https://shopnow.stewleonards.com/collections/weekly-specials")
	require.NoError(t, err)
	assert.Equal(t, StewLeonardsName, s.Name())
	assert.Equal(t, "Stew Leonard's", s.Store().Name)

	_, err = Lookup("wegmans", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hmart, stew_leonards")
}

func TestNamesAndAll(t *testing.T) {
	assert.Equal(t, []string{HmartName, StewLeonardsName}, Names())

	all := All()
	require.Len(t, all, 2)
	for _, s := range all {
		assert.Equal(t, s.Name(), s.Bucket())
		assert.NotEmpty(t, s.Store().Website)
	}
}

func TestResolve(t *testing.T) {
	base := mustURL(t, "https://www.hmart.com/weekly-ads")

	assert.Equal(t, "https://www.hmart.com/product/1", resolve(base, "/product/1"))
	assert.Equal(t, "https://www.hmart.com/deal/2", resolve(base, "deal/2"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", resolve(base, "//cdn.example.com/a.jpg"))
	assert.Equal(t, "", resolve(base, "  "))
	assert.Equal(t, "", resolve(base, "data:image/png;base64,AAAA"))
}

func TestInnermost(t *testing.T) {
	doc, err := parseHTML([]byte(`
<div class="deal" id="outer">
  <div class="deal" id="inner"><h3>Pears</h3></div>
</div>
<div class="deal" id="solo"><h3>Plums</h3></div>`))
	require.NoError(t, err)

	var ids []string
	innermost(doc.Find("div.deal")).Each(func(_ int, s *goquery.Selection) {
		ids = append(ids, s.AttrOr("id", ""))
	})
	assert.Equal(t, []string{"inner", "solo"}, ids)
}

func TestFragments_SkipsScriptText(t *testing.T) {
	doc, err := parseHTML([]byte(`
<div id="item">
  <span class="price sale" style="color:red">$3.49</span>
  <del>$4.99</del>
  <div><script>var p = "$1.00";</script></div>
</div>`))
	require.NoError(t, err)

	frags := fragments(doc.Find("#item"))
	require.Len(t, frags, 2)
	assert.Equal(t, "span", frags[0].Tag)
	assert.Equal(t, "$3.49", frags[0].Text)
	assert.Equal(t, []string{"price", "sale"}, frags[0].Classes)
	assert.Equal(t, "color:red", frags[0].Style)
	assert.Equal(t, "del", frags[1].Tag)
	assert.True(t, frags[1].Struck())
}
