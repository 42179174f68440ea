package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-sync/internal/resilience"
	"github.com/sells-group/catalog-sync/pkg/firecrawl"
)

// RequestOptions are passed through to every rendering request.
type RequestOptions struct {
	IncludeTags []string
	ExcludeTags []string
	WaitFor     time.Duration
	Timeout     time.Duration
}

// FirecrawlScraper fetches pages through the Firecrawl scrape endpoint.
type FirecrawlScraper struct {
	client firecrawl.Client
	opts   RequestOptions
	retry  resilience.RetryConfig
}

// NewFirecrawlScraper wraps a Firecrawl client. Transient transport errors
// and 408/429/5xx responses are retried according to retry.
func NewFirecrawlScraper(client firecrawl.Client, opts RequestOptions, retry resilience.RetryConfig) *FirecrawlScraper {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("firecrawl", "scrape")
	}
	return &FirecrawlScraper{client: client, opts: opts, retry: retry}
}

// Name implements Scraper.
func (f *FirecrawlScraper) Name() string { return "firecrawl" }

// Scrape renders targetURL once (plus retries on transient failures). All
// failures are returned as *ExtractionFailed.
func (f *FirecrawlScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	req := firecrawl.ScrapeRequest{
		URL:         targetURL,
		Formats:     []string{firecrawl.FormatHTML, firecrawl.FormatMarkdown},
		IncludeTags: f.opts.IncludeTags,
		ExcludeTags: f.opts.ExcludeTags,
		WaitFor:     int(f.opts.WaitFor.Milliseconds()),
		Timeout:     int(f.opts.Timeout.Milliseconds()),
	}

	resp, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		resp, err := f.client.Scrape(ctx, req)
		if err != nil {
			var apiErr *firecrawl.APIError
			if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
				return nil, resilience.NewTransientError(err, apiErr.StatusCode)
			}
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		ef := failed(KindFetch, targetURL, err)
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) {
			ef.StatusCode = apiErr.StatusCode
		}
		return nil, ef
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "scrape not successful"
		}
		return nil, failed(KindService, targetURL, eris.New(msg))
	}

	data := resp.Data
	if status := data.Metadata.StatusCode; status >= 400 {
		if blocked, kind := DetectBlock(status, data.Content()); blocked {
			ef := failed(KindBlocked, targetURL, eris.Errorf("blocked (%s)", kind))
			ef.StatusCode = status
			return nil, ef
		}
		ef := failed(KindFetch, targetURL, eris.New("origin returned an error status"))
		ef.StatusCode = status
		return nil, ef
	}
	if blocked, kind := DetectBlock(data.Metadata.StatusCode, data.Content()); blocked {
		return nil, failed(KindBlocked, targetURL, eris.Errorf("blocked (%s)", kind))
	}

	pageURL := data.Metadata.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Page{
		URL:        pageURL,
		HTML:       firstNonEmpty(data.HTML, data.RawHTML),
		Markdown:   data.Markdown,
		Title:      data.Metadata.Title,
		StatusCode: data.Metadata.StatusCode,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
