package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-sync/internal/extract"
)

type stubScraper struct {
	page  *Page
	err   error
	calls int
}

func (s *stubScraper) Name() string { return "stub" }

func (s *stubScraper) Scrape(_ context.Context, url string) (*Page, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	p := *s.page
	p.URL = url
	return &p, nil
}

func newTestExtractor(s Scraper) *Extractor {
	return NewExtractor(s, extract.NewSet(extract.DefaultBand, "GBP"), nil)
}

func TestExtractor_Success(t *testing.T) {
	s := &stubScraper{page: &Page{HTML: `<html><body>
<h1>Pop! Marvel: Spider-Man</h1><p>Item No.: 574</p><p>Price: £14.99</p></body></html>`}}

	res, err := newTestExtractor(s).Extract(context.Background(), "https://shop.example.com/products/spider-man-574")
	require.NoError(t, err)
	assert.Equal(t, "Pop! Marvel: Spider-Man", res.Title)
	assert.Equal(t, "574", res.Identifier)
	assert.Equal(t, "Marvel", res.Series)
	require.True(t, res.HasPrice())
	assert.InDelta(t, 14.99, res.Price.Amount, 0.001)
	assert.Equal(t, "https://shop.example.com/products/spider-man-574", res.SourceURL)
}

func TestExtractor_PartialFieldsTolerated(t *testing.T) {
	s := &stubScraper{page: &Page{HTML: `<h1>Mystery Figure</h1>`}}

	res, err := newTestExtractor(s).Extract(context.Background(), "https://shop.example.com/products/mystery")
	require.NoError(t, err)
	assert.Equal(t, "Mystery Figure", res.Title)
	assert.Empty(t, res.ImageURL)
	assert.False(t, res.HasPrice())
}

func TestExtractor_MissingTitle(t *testing.T) {
	s := &stubScraper{page: &Page{HTML: `<p>£12.00</p>`}}

	_, err := newTestExtractor(s).Extract(context.Background(), "https://shop.example.com/products/x")
	ef, ok := IsExtractionFailed(err)
	require.True(t, ok)
	assert.Equal(t, KindParse, ef.Kind)
	assert.ErrorIs(t, err, ErrMissingTitle)
}

func TestExtractor_EmptyPage(t *testing.T) {
	s := &stubScraper{page: &Page{}}

	_, err := newTestExtractor(s).Extract(context.Background(), "https://shop.example.com/products/x")
	ef, ok := IsExtractionFailed(err)
	require.True(t, ok)
	assert.Equal(t, KindParse, ef.Kind)
}

func TestExtractor_ExcludedURLNotFetched(t *testing.T) {
	s := &stubScraper{page: &Page{HTML: `<h1>x</h1>`}}

	_, err := newTestExtractor(s).Extract(context.Background(), "https://shop.example.com/blogs/news/drop")
	ef, ok := IsExtractionFailed(err)
	require.True(t, ok)
	assert.Equal(t, KindExcluded, ef.Kind)
	assert.ErrorIs(t, err, errExcluded)
	assert.Equal(t, 0, s.calls)
}

func TestExtractor_ScraperErrorWrapped(t *testing.T) {
	s := &stubScraper{err: errors.New("dial tcp: refused")}

	_, err := newTestExtractor(s).Extract(context.Background(), "https://shop.example.com/products/x")
	ef, ok := IsExtractionFailed(err)
	require.True(t, ok)
	assert.Equal(t, KindFetch, ef.Kind)
	assert.Contains(t, err.Error(), "refused")
}

func TestExtractionFailed_Error(t *testing.T) {
	err := &ExtractionFailed{Kind: KindFetch, URL: "https://x", StatusCode: 500, Err: errors.New("oops")}
	assert.Equal(t, "scrape: fetch failure for https://x (HTTP 500): oops", err.Error())
}
