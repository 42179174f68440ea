// Package job runs paced, single-flight batch jobs over the catalog and
// reports their progress.
//
// A run moves idle → running → completed, paused or error. Paused is only
// reached through Stop (or shutdown) while running; a stopped run is never
// resumed, a new Start begins a fresh run from startFrom. Each item is
// extracted, reconciled and aggregated in turn; item failures are counted
// and the loop continues. Only setup failures end a run in error.
package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/catalog"
	"github.com/sells-group/catalog-sync/internal/config"
	"github.com/sells-group/catalog-sync/internal/model"
	"github.com/sells-group/catalog-sync/internal/notify"
	"github.com/sells-group/catalog-sync/internal/pricing"
	"github.com/sells-group/catalog-sync/internal/resilience"
	"github.com/sells-group/catalog-sync/internal/store"
)

const defaultLeaseStale = 5 * time.Minute

// Extractor turns a detail-page URL into an extraction result.
type Extractor interface {
	Extract(ctx context.Context, url string) (*model.ExtractionResult, error)
}

// Discoverer finds product URLs on listing pages.
type Discoverer interface {
	DiscoverAll(ctx context.Context, listingURLs []string, limit int) ([]string, error)
}

// Reconciler upserts a catalog item from an extraction result.
// ReconcileKnown is used for items selected from the catalog: a result whose
// natural key matches nothing is merged into that item.
type Reconciler interface {
	Reconcile(ctx context.Context, res *model.ExtractionResult) (*catalog.Result, error)
	ReconcileKnown(ctx context.Context, res *model.ExtractionResult, itemID string) (*catalog.Result, error)
}

// Aggregator records price observations for an item.
type Aggregator interface {
	Aggregate(ctx context.Context, itemID string, raw []model.RawPrice) (*pricing.Result, error)
}

// Deps are the collaborators a run drives. Only Store is required for
// Status and Stop.
type Deps struct {
	Store      store.Store
	Extractor  Extractor
	Discoverer Discoverer
	Reconciler Reconciler
	Aggregator Aggregator
	Notifier   notify.Notifier
}

// Config holds controller settings.
type Config struct {
	Batch         config.BatchConfig
	ListingURLs   []string
	DiscoverLimit int
	// Condition tags every price observation collected by a run.
	Condition string
	// Owner identifies this process in the lease row. Defaults to host:pid.
	Owner string
	// Preflight runs before the working set is built. An error ends the run
	// in the error state with nothing processed.
	Preflight func(ctx context.Context) error
}

// Controller starts, stops and reports on batch runs. At most one run per
// job type is active across every process sharing the store.
type Controller struct {
	store      store.Store
	extractor  Extractor
	discoverer Discoverer
	reconciler Reconciler
	aggregator Aggregator
	notifier   notify.Notifier
	cfg        Config
	log        *zap.Logger
	now        func() time.Time

	mu   sync.Mutex
	runs map[model.JobType]*run
	wg   sync.WaitGroup
}

type run struct {
	tracker
	opts   model.JobOptions
	stop   atomic.Bool
	cancel context.CancelFunc
}

// New creates a Controller. Notifier failures never reach the controller:
// a notifier that is not already a notify.Safe is wrapped in one.
func New(deps Deps, cfg Config) *Controller {
	if cfg.Owner == "" {
		host, _ := os.Hostname()
		cfg.Owner = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	n := deps.Notifier
	if n == nil {
		n = notify.NewLog()
	}
	if _, ok := n.(*notify.Safe); !ok {
		n = notify.NewSafe(n, 0)
	}
	return &Controller{
		store:      deps.Store,
		extractor:  deps.Extractor,
		discoverer: deps.Discoverer,
		reconciler: deps.Reconciler,
		aggregator: deps.Aggregator,
		notifier:   n,
		cfg:        cfg,
		log:        zap.L().With(zap.String("component", "job")),
		now:        func() time.Time { return time.Now().UTC() },
		runs:       make(map[model.JobType]*run),
	}
}

// Start begins a run in the background and returns its first snapshot.
// If a run of jobType is already active, it returns ErrAlreadyRunning with
// the current progress unchanged.
func (c *Controller) Start(ctx context.Context, jobType model.JobType, opts model.JobOptions) (model.BatchProgress, error) {
	r, runCtx, err := c.begin(ctx, context.WithoutCancel(ctx), jobType, opts)
	if err != nil {
		p, _ := c.Status(ctx, jobType)
		return p, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.execute(runCtx, r)
	}()
	return r.snapshot(), nil
}

// Run executes a run to its terminal state in the caller's goroutine.
// Cancelling ctx pauses the run. The returned error is the setup failure
// of a run that ended in error.
func (c *Controller) Run(ctx context.Context, jobType model.JobType, opts model.JobOptions) (model.BatchProgress, error) {
	r, runCtx, err := c.begin(ctx, ctx, jobType, opts)
	if err != nil {
		p, _ := c.Status(ctx, jobType)
		return p, err
	}
	return c.execute(runCtx, r)
}

// Stop requests cancellation of the active run of jobType. The run pauses
// at its next poll point. The request is also persisted so that a run owned
// by another process sees it on its next heartbeat.
func (c *Controller) Stop(ctx context.Context, jobType model.JobType) (model.BatchProgress, error) {
	if !jobType.Valid() {
		return model.BatchProgress{}, eris.Wrapf(ErrUnknownJobType, "job: %q", jobType)
	}
	if r := c.active(jobType); r != nil {
		r.stop.Store(true)
	}
	if _, err := c.store.RequestCancel(ctx, jobType); err != nil {
		if c.active(jobType) == nil {
			return model.IdleProgress(jobType), eris.Wrapf(err, "job: request cancel %s", jobType)
		}
		c.log.Warn("persist cancel request failed", zap.String("job_type", string(jobType)), zap.Error(err))
	}
	return c.Status(ctx, jobType)
}

// Status returns a snapshot of the active or most recent run of jobType.
// A persisted running row whose owner stopped heartbeating is reported as
// error.
func (c *Controller) Status(ctx context.Context, jobType model.JobType) (model.BatchProgress, error) {
	if !jobType.Valid() {
		return model.BatchProgress{}, eris.Wrapf(ErrUnknownJobType, "job: %q", jobType)
	}
	if r := c.active(jobType); r != nil {
		return r.snapshot(), nil
	}
	p, err := c.store.LatestProgress(ctx, jobType)
	if err != nil {
		return model.IdleProgress(jobType), eris.Wrapf(err, "job: status %s", jobType)
	}
	if p == nil {
		return model.IdleProgress(jobType), nil
	}
	return staleView(*p, c.now(), c.staleAfter()), nil
}

// Running reports whether this process owns an active run of jobType.
func (c *Controller) Running(jobType model.JobType) bool {
	return c.active(jobType) != nil
}

// Wait blocks until every background run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown cancels every active run and waits for them to record their
// final state, or for ctx to end.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	for _, r := range c.runs {
		r.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func staleView(p model.BatchProgress, now time.Time, window time.Duration) model.BatchProgress {
	if p.Status != model.JobStatusRunning || p.HeartbeatAt == nil {
		return p
	}
	if now.Sub(*p.HeartbeatAt) <= window {
		return p
	}
	p.Status = model.JobStatusError
	p.LastError = staleMessage
	return p
}

func (c *Controller) begin(ctx, parent context.Context, jobType model.JobType, opts model.JobOptions) (*run, context.Context, error) {
	if !jobType.Valid() {
		return nil, nil, eris.Wrapf(ErrUnknownJobType, "job: %q", jobType)
	}

	c.mu.Lock()
	if _, ok := c.runs[jobType]; ok {
		c.mu.Unlock()
		return nil, nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(parent)
	r := &run{
		tracker: tracker{
			p:          model.IdleProgress(jobType),
			itemPause:  c.cfg.Batch.ItemPause(),
			batchPause: c.cfg.Batch.BatchPause(),
		},
		opts:   c.resolve(opts),
		cancel: cancel,
	}
	c.runs[jobType] = r
	c.mu.Unlock()

	runID := uuid.NewString()
	acquired, err := c.store.AcquireLease(ctx, jobType, runID, c.cfg.Owner, c.staleAfter())
	if err != nil || !acquired {
		c.forget(jobType, r)
		cancel()
		if err != nil {
			return nil, nil, eris.Wrapf(err, "job: acquire lease %s", jobType)
		}
		return nil, nil, ErrAlreadyRunning
	}

	now := c.now()
	p := r.update(func(p *model.BatchProgress) {
		p.RunID = runID
		p.Status = model.JobStatusRunning
		p.StartedAt = &now
		p.HeartbeatAt = &now
	})
	c.save(ctx, p)

	c.log.Info("run started",
		zap.String("job_type", string(jobType)),
		zap.String("run_id", runID),
		zap.Int("batch_size", r.opts.BatchSize),
		zap.Int("max_items", r.opts.MaxItems),
		zap.Int("start_from", r.opts.StartFrom),
	)
	return r, runCtx, nil
}

func (c *Controller) execute(ctx context.Context, r *run) (model.BatchProgress, error) {
	p := r.snapshot()

	if c.cfg.Preflight != nil {
		if err := c.cfg.Preflight(ctx); err != nil {
			return c.fail(ctx, r, &SetupError{Op: "preflight", Err: err})
		}
	}
	if c.extractor == nil || c.reconciler == nil || c.aggregator == nil {
		return c.fail(ctx, r, &SetupError{Op: "pipeline", Err: errors.New("extractor, reconciler and aggregator are required")})
	}

	items, err := c.workingSet(ctx, p.JobType, r.opts)
	if err != nil {
		return c.fail(ctx, r, err)
	}

	batches := chunk(items, r.opts.BatchSize)
	p = r.update(func(p *model.BatchProgress) {
		p.TotalItems = len(items)
		p.TotalBatches = len(batches)
	})
	c.save(ctx, p)
	_ = c.notifier.Notify(ctx, notify.Started(p))

	for bi, batch := range batches {
		if bi > 0 {
			if err := resilience.Sleep(ctx, c.cfg.Batch.BatchPause()); err != nil {
				return c.finish(ctx, r, model.JobStatusPaused, nil), nil
			}
		}
		if stop, err := c.checkpoint(ctx, r); err != nil {
			return c.fail(ctx, r, err)
		} else if stop {
			return c.finish(ctx, r, model.JobStatusPaused, nil), nil
		}
		r.update(func(p *model.BatchProgress) { p.CurrentBatchIndex = bi + 1 })

		for ii, item := range batch {
			if ii > 0 {
				if err := resilience.Sleep(ctx, c.cfg.Batch.ItemPause()); err != nil {
					return c.finish(ctx, r, model.JobStatusPaused, nil), nil
				}
			}
			if stop, err := c.checkpoint(ctx, r); err != nil {
				return c.fail(ctx, r, err)
			} else if stop {
				return c.finish(ctx, r, model.JobStatusPaused, nil), nil
			}
			c.process(ctx, r, item)
		}
	}

	return c.finish(ctx, r, model.JobStatusCompleted, nil), nil
}

// checkpoint heartbeats the lease and reports whether the run should stop.
func (c *Controller) checkpoint(ctx context.Context, r *run) (bool, error) {
	if ctx.Err() != nil || r.stop.Load() {
		return true, nil
	}
	p := r.snapshot()
	cancelRequested, err := c.store.RenewLease(ctx, p.JobType, p.RunID)
	if errors.Is(err, store.ErrLeaseLost) {
		return false, err
	}
	if err != nil {
		c.log.Warn("lease heartbeat failed",
			zap.String("job_type", string(p.JobType)),
			zap.String("run_id", p.RunID),
			zap.Error(err),
		)
		return false, nil
	}
	now := c.now()
	r.update(func(p *model.BatchProgress) { p.HeartbeatAt = &now })
	return cancelRequested, nil
}

func (c *Controller) process(ctx context.Context, r *run, item WorkItem) {
	started := time.Now()
	p := r.update(func(p *model.BatchProgress) { p.CurrentItemLabel = item.Label })

	collected, err := c.processItem(ctx, item)

	task := model.ScrapeTask{
		Source:    catalog.Provenance(item.URL),
		URL:       item.URL,
		RunID:     p.RunID,
		Status:    model.ScrapeTaskSucceeded,
		UpdatedAt: c.now(),
	}
	if err != nil {
		task.Status = model.ScrapeTaskFailed
		task.LastError = err.Error()
		c.log.Warn("item failed",
			zap.String("run_id", p.RunID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
	}
	if terr := c.store.RecordScrapeTask(ctx, task); terr != nil {
		c.log.Warn("record scrape task failed", zap.String("url", item.URL), zap.Error(terr))
	}

	p = r.record(time.Since(started), err, collected, c.now())
	c.save(ctx, p)
}

// processItem extracts, reconciles and prices one URL. It reports whether a
// new estimated value was written.
func (c *Controller) processItem(ctx context.Context, item WorkItem) (bool, error) {
	res, err := c.extractor.Extract(ctx, item.URL)
	if err != nil {
		return false, err
	}
	var rec *catalog.Result
	if item.CatalogID != "" {
		rec, err = c.reconciler.ReconcileKnown(ctx, res, item.CatalogID)
	} else {
		rec, err = c.reconciler.Reconcile(ctx, res)
	}
	if err != nil {
		return false, err
	}
	if !res.HasPrice() {
		return false, nil
	}

	agg, err := c.aggregator.Aggregate(ctx, rec.ItemID, []model.RawPrice{{
		Value:      formatPrice(*res.Price),
		SourceName: catalog.Provenance(item.URL),
		Condition:  c.cfg.Condition,
		ListingURL: item.URL,
	}})
	if err != nil {
		return false, err
	}
	return agg.Updated, nil
}

func (c *Controller) fail(ctx context.Context, r *run, cause error) (model.BatchProgress, error) {
	return c.finish(ctx, r, model.JobStatusError, cause), cause
}

func (c *Controller) finish(ctx context.Context, r *run, status model.JobStatus, cause error) model.BatchProgress {
	ctx = context.WithoutCancel(ctx)
	now := c.now()
	p := r.update(func(p *model.BatchProgress) {
		p.Status = status
		p.FinishedAt = &now
		p.HeartbeatAt = &now
		p.CurrentItemLabel = ""
		p.EstimatedCompletionAt = nil
		if cause != nil {
			p.LastError = cause.Error()
		}
	})
	c.save(ctx, p)

	if err := c.store.ReleaseLease(ctx, p.JobType, p.RunID); err != nil {
		c.log.Warn("release lease failed", zap.String("run_id", p.RunID), zap.Error(err))
	}
	c.forget(p.JobType, r)
	r.cancel()

	c.log.Info("run finished",
		zap.String("job_type", string(p.JobType)),
		zap.String("run_id", p.RunID),
		zap.String("status", string(p.Status)),
		zap.Int("processed", p.ProcessedItems),
		zap.Int("succeeded", p.SucceededItems),
		zap.Int("failed", p.FailedItems),
		zap.Int("values_collected", p.ValuesCollected),
	)
	_ = c.notifier.Notify(ctx, notify.Finished(p))
	return p
}

func (c *Controller) save(ctx context.Context, p model.BatchProgress) {
	if err := c.store.SaveProgress(ctx, &p); err != nil {
		c.log.Warn("save progress failed", zap.String("run_id", p.RunID), zap.Error(err))
	}
}

func (c *Controller) active(jobType model.JobType) *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[jobType]
}

func (c *Controller) forget(jobType model.JobType, r *run) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runs[jobType] == r {
		delete(c.runs, jobType)
	}
}

func (c *Controller) staleAfter() time.Duration {
	if d := c.cfg.Batch.LeaseStale(); d > 0 {
		return d
	}
	return defaultLeaseStale
}

// resolve fills unset options from the batch config.
func (c *Controller) resolve(opts model.JobOptions) model.JobOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = c.cfg.Batch.BatchSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = c.cfg.Batch.MaxItems
	}
	if opts.StartFrom <= 0 {
		opts.StartFrom = max(c.cfg.Batch.StartFrom, 0)
	}
	return opts
}

func chunk(items []WorkItem, size int) [][]WorkItem {
	var out [][]WorkItem
	for size < len(items) {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func formatPrice(m model.Money) string {
	s := strconv.FormatFloat(m.Amount, 'f', 2, 64)
	if m.Currency != "" {
		s += " " + m.Currency
	}
	return s
}
