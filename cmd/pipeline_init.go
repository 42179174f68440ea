package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/catalog"
	"github.com/sells-group/catalog-sync/internal/discover"
	"github.com/sells-group/catalog-sync/internal/extract"
	"github.com/sells-group/catalog-sync/internal/job"
	"github.com/sells-group/catalog-sync/internal/notify"
	"github.com/sells-group/catalog-sync/internal/pricing"
	"github.com/sells-group/catalog-sync/internal/resilience"
	"github.com/sells-group/catalog-sync/internal/scrape"
	"github.com/sells-group/catalog-sync/internal/store"
	"github.com/sells-group/catalog-sync/pkg/firecrawl"
)

// pipelineEnv holds the store, clients and job controller needed by the
// serve/sync/schedule commands.
type pipelineEnv struct {
	Store      store.Store
	Extractor  *scrape.Extractor
	Discoverer *discover.Discoverer
	Jobs       *job.Controller
	Notifier   notify.Notifier
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the store and wires the
// extraction pipeline and job controller. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Firecrawl.Key == "" {
		zap.L().Warn("firecrawl key is not configured, job runs will fail preflight")
	}
	extractor, discoverer, err := initScrapers()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	notifier := notify.FromConfig(cfg)
	jobs := job.New(job.Deps{
		Store:      st,
		Extractor:  extractor,
		Discoverer: discoverer,
		Reconciler: catalog.New(st),
		Aggregator: pricing.New(st, priceBand(), cfg.Pricing.Currency),
		Notifier:   notifier,
	}, job.Config{
		Batch:         cfg.Batch,
		ListingURLs:   cfg.Discover.ListingURLs,
		DiscoverLimit: cfg.Discover.MaxURLs,
		Condition:     cfg.Pricing.DefaultCondition,
		Preflight:     preflight(st),
	})

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.Int("listing_urls", len(cfg.Discover.ListingURLs)),
		zap.Stringer("price_band", priceBand()),
	)

	return &pipelineEnv{
		Store:      st,
		Extractor:  extractor,
		Discoverer: discoverer,
		Jobs:       jobs,
		Notifier:   notifier,
	}, nil
}

// initScrapers builds the Firecrawl-backed extractor and discoverer. They
// need no store, so extract and discover can run without a database.
// The key is not checked here; see cfg.Validate("scrape") and preflight.
func initScrapers() (*scrape.Extractor, *discover.Discoverer, error) {
	opts := []firecrawl.Option{firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL)}
	if cfg.Firecrawl.RateLimit > 0 {
		opts = append(opts, firecrawl.WithRateLimit(cfg.Firecrawl.RateLimit))
	}
	if cfg.Firecrawl.TimeoutSecs > 0 {
		opts = append(opts, firecrawl.WithTimeout(time.Duration(cfg.Firecrawl.TimeoutSecs)*time.Second))
	}
	client := firecrawl.NewClient(cfg.Firecrawl.Key, opts...)

	scraper := scrape.NewFirecrawlScraper(client, scrape.RequestOptions{
		IncludeTags: cfg.Extract.IncludeTags,
		ExcludeTags: cfg.Extract.ExcludeTags,
		WaitFor:     time.Duration(cfg.Extract.WaitForMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Extract.TimeoutMs) * time.Millisecond,
	}, resilience.WithAttempts(cfg.Firecrawl.MaxAttempts))

	matcher := scrape.NewPathMatcher(cfg.Extract.ExcludePaths)
	extractor := scrape.NewExtractor(scraper, extract.NewSet(priceBand(), cfg.Pricing.Currency), matcher)

	profile := discover.DefaultProfile()
	if cfg.Discover.ProfilePath != "" {
		p, err := discover.LoadProfile(cfg.Discover.ProfilePath)
		if err != nil {
			return nil, nil, eris.Wrap(err, "load site profile")
		}
		profile = p
	}
	return extractor, discover.New(scraper, profile, matcher), nil
}

func priceBand() extract.Band {
	return extract.Band{Min: cfg.Pricing.MinPrice, Max: cfg.Pricing.MaxPrice}
}

// preflight checks the settings a run cannot start without.
func preflight(st store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if cfg.Firecrawl.Key == "" {
			return eris.New("firecrawl key is not configured")
		}
		if err := st.Ping(ctx); err != nil {
			return eris.Wrap(err, "store unreachable")
		}
		return nil
	}
}
