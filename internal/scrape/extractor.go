package scrape

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/extract"
	"github.com/sells-group/catalog-sync/internal/model"
)

// Extractor turns one detail-page URL into an ExtractionResult.
type Extractor struct {
	scraper Scraper
	fields  *extract.Set
	matcher *PathMatcher
	log     *zap.Logger
}

// NewExtractor creates an Extractor. A nil matcher uses the default exclude
// patterns.
func NewExtractor(scraper Scraper, fields *extract.Set, matcher *PathMatcher) *Extractor {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	return &Extractor{
		scraper: scraper,
		fields:  fields,
		matcher: matcher,
		log:     zap.L().With(zap.String("component", "extractor")),
	}
}

// Extract fetches url and runs every field chain over it. Only the title is
// required; other fields are left empty when no strategy matched.
func (e *Extractor) Extract(ctx context.Context, url string) (*model.ExtractionResult, error) {
	if e.matcher.IsExcluded(url) {
		return nil, failed(KindExcluded, url, errExcluded)
	}

	page, err := e.scraper.Scrape(ctx, url)
	if err != nil {
		if _, ok := IsExtractionFailed(err); ok {
			return nil, err
		}
		return nil, failed(KindFetch, url, err)
	}

	doc, err := extract.NewDocument(page.URL, page.HTML, page.Markdown)
	if err != nil {
		return nil, failed(KindParse, url, err)
	}

	res := e.fields.Apply(doc)
	if res.Title == "" {
		return nil, failed(KindParse, url, ErrMissingTitle)
	}
	res.SourceURL = url

	e.log.Debug("extracted page",
		zap.String("url", url),
		zap.String("title", res.Title),
		zap.Bool("has_price", res.HasPrice()),
		zap.Any("strategies", res.Strategies),
	)
	return &res, nil
}
