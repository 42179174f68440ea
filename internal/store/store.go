package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-sync/internal/model"
)

var (
	// ErrNotFound is returned when an update or get targets a missing row.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned by InsertItem when the natural key already
	// exists, typically because a concurrent writer inserted it first.
	ErrDuplicate = eris.New("store: duplicate natural key")
	// ErrLeaseLost is returned by RenewLease when the lease row no longer
	// belongs to the run.
	ErrLeaseLost = eris.New("store: lease lost")
)

// ItemFilter specifies criteria for listing catalog items.
type ItemFilter struct {
	Series string `json:"series,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// TaskFilter specifies criteria for listing scrape tasks.
type TaskFilter struct {
	RunID  string                 `json:"run_id,omitempty"`
	Status model.ScrapeTaskStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the catalog pipeline.
type Store interface {
	// Catalog items
	FindByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.CatalogItem, error)
	GetItem(ctx context.Context, id string) (*model.CatalogItem, error)
	InsertItem(ctx context.Context, item *model.CatalogItem) error
	// UpdateItem writes descriptive fields and flags. Price fields are only
	// written through SetEstimatedValue.
	UpdateItem(ctx context.Context, item *model.CatalogItem) error
	ListRefreshCandidates(ctx context.Context, limit int) ([]model.CatalogItem, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]model.CatalogItem, error)

	// Price history
	AppendObservations(ctx context.Context, obs []model.PriceObservation) error
	SetEstimatedValue(ctx context.Context, itemID string, value model.Money, at time.Time) error
	ListObservations(ctx context.Context, itemID string) ([]model.PriceObservation, error)

	// Job leases. A lease whose heartbeat is older than staleAfter may be
	// taken over by another run.
	AcquireLease(ctx context.Context, jobType model.JobType, runID, owner string, staleAfter time.Duration) (bool, error)
	RenewLease(ctx context.Context, jobType model.JobType, runID string) (cancelRequested bool, err error)
	ReleaseLease(ctx context.Context, jobType model.JobType, runID string) error
	RequestCancel(ctx context.Context, jobType model.JobType) (bool, error)

	// Job runs
	SaveProgress(ctx context.Context, p *model.BatchProgress) error
	LatestProgress(ctx context.Context, jobType model.JobType) (*model.BatchProgress, error)

	// Scrape tasks
	RecordScrapeTask(ctx context.Context, task model.ScrapeTask) error
	ListScrapeTasks(ctx context.Context, filter TaskFilter) ([]model.ScrapeTask, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
