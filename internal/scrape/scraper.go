// Package scrape fetches detail pages through the rendering service and turns
// them into extraction results.
package scrape

import (
	"context"
)

// Page is one rendered page as returned by a Scraper.
type Page struct {
	URL        string
	HTML       string
	Markdown   string
	Title      string
	StatusCode int
}

// Scraper fetches a single URL and returns its rendered content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Page, error)
	Name() string
}
