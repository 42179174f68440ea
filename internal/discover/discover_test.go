package discover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-sync/internal/scrape"
)

const listing = `<html><body>
<a href="https://Shop.Example.com/products/superman-001?variant=1">Superman</a>
<a href="/products/batman-123">Batman</a>
<a href="/products/batman-123#reviews">Batman reviews</a>
<a href="/collections/dc/products/joker-456">Joker</a>
<a href="/collections/dc/products/batman-123/">Batman again</a>
<a href="https://cdn.example.net/products/image.jpg">CDN</a>
<a href="/pages/about">About</a>
<a href="/blogs/news/products/not-a-product">Blog</a>
<script type="application/json">{"items":[{"url":"\/products\/harley-789","title":"Harley"},{"image":"\/products\/ignored.jpg"}]}</script>
</body></html>`

func TestLinks_PatternsAndDedup(t *testing.T) {
	got, err := DefaultProfile().Links(listing, "https://shop.example.com/collections/dc", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://shop.example.com/products/superman-001",
		"https://shop.example.com/products/batman-123",
		"https://shop.example.com/products/joker-456",
		"https://shop.example.com/products/harley-789",
	}, got)
}

func TestLinks_Idempotent(t *testing.T) {
	p := DefaultProfile()
	first, err := p.Links(listing, "https://shop.example.com/collections/dc", 0)
	require.NoError(t, err)
	second, err := p.Links(listing, "https://shop.example.com/collections/dc", 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLinks_DuplicateHrefYieldsOneEntry(t *testing.T) {
	body := `<a href="/products/batman-123">a</a><p>x</p><a href="/products/batman-123">b</a>`
	got, err := DefaultProfile().Links(body, "https://shop.example.com/collections/all", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.com/products/batman-123"}, got)
}

func TestLinks_Cap(t *testing.T) {
	got, err := DefaultProfile().Links(listing, "https://shop.example.com/", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://shop.example.com/products/superman-001",
		"https://shop.example.com/products/batman-123",
	}, got)
}

func TestLinks_Markdown(t *testing.T) {
	md := "* [Batman](https://shop.example.com/products/batman-123)\n* [Joker](/collections/dc/products/joker-456)\n"
	got, err := DefaultProfile().Links(md, "https://shop.example.com/", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://shop.example.com/products/batman-123",
		"https://shop.example.com/products/joker-456",
	}, got)
}

func TestLinks_InvalidListingURL(t *testing.T) {
	_, err := DefaultProfile().Links("<a></a>", "not a url", 0)
	assert.Error(t, err)
}

type fakeScraper struct {
	pages map[string]*scrape.Page
	calls int
}

func (f *fakeScraper) Name() string { return "fake" }

func (f *fakeScraper) Scrape(_ context.Context, url string) (*scrape.Page, error) {
	f.calls++
	p, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func TestDiscover_FetchesOnceAndFilters(t *testing.T) {
	fs := &fakeScraper{pages: map[string]*scrape.Page{
		"https://shop.example.com/collections/dc": {HTML: listing},
	}}
	d := New(fs, nil, scrape.NewPathMatcher([]string{"/products/joker-*"}))

	got, err := d.Discover(context.Background(), "https://shop.example.com/collections/dc", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, fs.calls)
	assert.NotContains(t, got, "https://shop.example.com/products/joker-456")
	assert.Len(t, got, 3)
}

func TestDiscover_FetchError(t *testing.T) {
	d := New(&fakeScraper{}, nil, nil)
	_, err := d.Discover(context.Background(), "https://shop.example.com/x", 10)
	assert.Error(t, err)
}

func TestDiscoverAll_MergesAndSkipsFailures(t *testing.T) {
	fs := &fakeScraper{pages: map[string]*scrape.Page{
		"https://shop.example.com/a": {HTML: `<a href="/products/one">1</a><a href="/products/two">2</a>`},
		"https://shop.example.com/b": {HTML: `<a href="/products/two">2</a><a href="/products/three">3</a>`},
	}}
	d := New(fs, nil, nil)

	got, err := d.DiscoverAll(context.Background(), []string{
		"https://shop.example.com/a",
		"https://shop.example.com/missing",
		"https://shop.example.com/b",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://shop.example.com/products/one",
		"https://shop.example.com/products/two",
		"https://shop.example.com/products/three",
	}, got)
}

func TestDiscoverAll_AllFail(t *testing.T) {
	d := New(&fakeScraper{}, nil, nil)
	_, err := d.DiscoverAll(context.Background(), []string{"https://shop.example.com/a"}, 0)
	assert.Error(t, err)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(`
name: bigcommerce
product_path: ^/[a-z0-9-]+-p[0-9]+$
collection_path: ""
link_prefix: "-p"
`))
	require.NoError(t, err)
	assert.Equal(t, "bigcommerce", p.Name)
	assert.Equal(t, []string{"url", "href", "product_url"}, p.JSONKeys)

	got, err := p.Links(`<a href="/batman-figure-p123">x</a><a href="/about">y</a>`, "https://store.example.com/", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://store.example.com/batman-figure-p123"}, got)
}

func TestParseProfile_BadRegex(t *testing.T) {
	_, err := ParseProfile([]byte(`product_path: "([unclosed"`))
	assert.Error(t, err)
}
