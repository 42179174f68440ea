package job

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/model"
)

// WorkItem is one URL to process in a run.
type WorkItem struct {
	URL       string
	Label     string
	CatalogID string
}

// workingSet builds the ordered list of items for a run. Price refreshes
// start with known items, most overdue first, then append newly discovered
// URLs. Discovery syncs only process discovered URLs. startFrom and maxItems
// are applied to the combined list.
func (c *Controller) workingSet(ctx context.Context, jobType model.JobType, opts model.JobOptions) ([]WorkItem, error) {
	want := 0
	if opts.MaxItems > 0 {
		want = opts.StartFrom + opts.MaxItems
	}

	var items []WorkItem
	seen := make(map[string]bool)

	if jobType == model.JobTypePriceRefresh {
		candidates, err := c.store.ListRefreshCandidates(ctx, want)
		if err != nil {
			return nil, &SetupError{Op: "list refresh candidates", Err: err}
		}
		for _, it := range candidates {
			if it.SourceURL == "" || seen[it.SourceURL] {
				continue
			}
			seen[it.SourceURL] = true
			items = append(items, WorkItem{URL: it.SourceURL, Label: it.Label(), CatalogID: it.ID})
		}
	}

	if jobType == model.JobTypeDiscovery && (len(c.cfg.ListingURLs) == 0 || c.discoverer == nil) {
		return nil, &SetupError{Op: "discover", Err: errNoListingURLs}
	}

	if (want == 0 || len(items) < want) && len(c.cfg.ListingURLs) > 0 && c.discoverer != nil {
		urls, err := c.discoverer.DiscoverAll(ctx, c.cfg.ListingURLs, c.cfg.DiscoverLimit)
		if err != nil {
			if jobType == model.JobTypeDiscovery {
				return nil, &SetupError{Op: "discover", Err: err}
			}
			c.log.Warn("job: discovery failed, refreshing known items only",
				zap.String("job_type", string(jobType)),
				zap.Error(err),
			)
		}
		for _, u := range urls {
			if seen[u] {
				continue
			}
			seen[u] = true
			items = append(items, WorkItem{URL: u, Label: labelFor(u)})
		}
	}

	return window(items, opts.StartFrom, opts.MaxItems), nil
}

func window(items []WorkItem, startFrom, maxItems int) []WorkItem {
	if startFrom >= len(items) {
		return nil
	}
	if startFrom > 0 {
		items = items[startFrom:]
	}
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func labelFor(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}
