package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-sync/internal/db"
	"github.com/sells-group/catalog-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	itemColumns = `id, name, series, number, category, description, image_url, source_url,
	estimated_value, value_currency, is_exclusive, is_chase, is_vaulted, variant,
	data_sources, price_updated_at, created_at, updated_at`

	pgFindByKey = `SELECT ` + itemColumns + ` FROM catalog_items
	 WHERE name = $1 AND series = $2 AND COALESCE(number, '') = $3`

	pgRenewLease = `UPDATE job_leases SET heartbeat_at = $1
	 WHERE job_type = $2 AND run_id = $3 RETURNING cancel_requested`

	pgSaveProgress = `INSERT INTO job_runs (run_id, job_type, status, progress, heartbeat_at, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $6)
	 ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status, progress = EXCLUDED.progress,
	 heartbeat_at = EXCLUDED.heartbeat_at, updated_at = EXCLUDED.updated_at`

	pgRecordTask = `INSERT INTO scrape_tasks (source, url, run_id, status, attempts, last_error, updated_at)
	 VALUES ($1, $2, $3, $4, 1, $5, $6)
	 ON CONFLICT (source, url) DO UPDATE SET run_id = EXCLUDED.run_id, status = EXCLUDED.status,
	 attempts = scrape_tasks.attempts + 1, last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at`
)

// preparedStatements lists queries to prepare on each new connection. These
// run once per item during a job.
var preparedStatements = map[string]string{
	"find_by_key":   pgFindByKey,
	"renew_lease":   pgRenewLease,
	"save_progress": pgSaveProgress,
	"record_task":   pgRecordTask,
}

var observationColumns = []string{
	"id", "catalog_item_id", "source_name", "amount", "currency", "condition", "listing_url", "observed_at",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS catalog_items (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name             TEXT NOT NULL,
	series           TEXT NOT NULL DEFAULT '',
	number           TEXT,
	category         TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	source_url       TEXT,
	estimated_value  NUMERIC(12,2),
	value_currency   TEXT NOT NULL DEFAULT '',
	is_exclusive     BOOLEAN NOT NULL DEFAULT false,
	is_chase         BOOLEAN NOT NULL DEFAULT false,
	is_vaulted       BOOLEAN NOT NULL DEFAULT false,
	variant          TEXT NOT NULL DEFAULT '',
	data_sources     TEXT[] NOT NULL DEFAULT '{}',
	price_updated_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_catalog_items_natural_key
	ON catalog_items (name, series, COALESCE(number, ''));
CREATE INDEX IF NOT EXISTS idx_catalog_items_price_updated_at ON catalog_items(price_updated_at NULLS FIRST);

CREATE TABLE IF NOT EXISTS price_history (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	catalog_item_id TEXT NOT NULL REFERENCES catalog_items(id) ON DELETE CASCADE,
	source_name     TEXT NOT NULL,
	amount          NUMERIC(12,2) NOT NULL,
	currency        TEXT NOT NULL,
	condition       TEXT NOT NULL DEFAULT '',
	listing_url     TEXT NOT NULL DEFAULT '',
	observed_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_history_item ON price_history(catalog_item_id, observed_at);

CREATE TABLE IF NOT EXISTS job_runs (
	run_id       TEXT PRIMARY KEY,
	job_type     TEXT NOT NULL,
	status       TEXT NOT NULL,
	progress     JSONB NOT NULL,
	heartbeat_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_job_runs_type_created ON job_runs(job_type, created_at DESC);

CREATE TABLE IF NOT EXISTS job_leases (
	job_type         TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	owner            TEXT NOT NULL,
	acquired_at      TIMESTAMPTZ NOT NULL,
	heartbeat_at     TIMESTAMPTZ NOT NULL,
	cancel_requested BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS scrape_tasks (
	source     TEXT NOT NULL,
	url        TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	status     TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, url)
);

CREATE INDEX IF NOT EXISTS idx_scrape_tasks_run ON scrape_tasks(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func scanPgItem(row pgx.Row) (*model.CatalogItem, error) {
	var it model.CatalogItem
	var sourceURL *string
	err := row.Scan(&it.ID, &it.Name, &it.Series, &it.Number, &it.Category, &it.Description,
		&it.ImageURL, &sourceURL, &it.EstimatedValue, &it.ValueCurrency, &it.IsExclusive,
		&it.IsChase, &it.IsVaulted, &it.Variant, &it.DataSources, &it.PriceUpdatedAt,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sourceURL != nil {
		it.SourceURL = *sourceURL
	}
	return &it, nil
}

func (s *PostgresStore) FindByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.CatalogItem, error) {
	it, err := scanPgItem(s.pool.QueryRow(ctx, pgFindByKey, key.Name, key.Series, key.NumberValue()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: find item %s", key)
	}
	return it, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.CatalogItem, error) {
	it, err := scanPgItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get item %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get item %s", id)
	}
	return it, nil
}

func (s *PostgresStore) InsertItem(ctx context.Context, item *model.CatalogItem) error {
	prepareInsert(item)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO catalog_items (`+itemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		item.ID, item.Name, item.Series, item.Number, item.Category, item.Description,
		item.ImageURL, nullIfEmpty(item.SourceURL), item.EstimatedValue, item.ValueCurrency,
		item.IsExclusive, item.IsChase, item.IsVaulted, item.Variant, item.DataSources,
		item.PriceUpdatedAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: insert item %s", item.Key())
		}
		return eris.Wrapf(err, "postgres: insert item %s", item.Key())
	}
	return nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item *model.CatalogItem) error {
	item.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE catalog_items SET name = $1, series = $2, number = $3, category = $4, description = $5,
		 image_url = $6, source_url = $7, is_exclusive = $8, is_chase = $9, is_vaulted = $10,
		 variant = $11, data_sources = $12, updated_at = $13 WHERE id = $14`,
		item.Name, item.Series, item.Number, item.Category, item.Description, item.ImageURL,
		nullIfEmpty(item.SourceURL), item.IsExclusive, item.IsChase, item.IsVaulted, item.Variant,
		nonNil(item.DataSources), item.UpdatedAt, item.ID,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: update item %s", item.ID)
		}
		return eris.Wrapf(err, "postgres: update item %s", item.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "item %s", item.ID)
	}
	return nil
}

func (s *PostgresStore) ListRefreshCandidates(ctx context.Context, limit int) ([]model.CatalogItem, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_items
	 WHERE source_url IS NOT NULL AND source_url <> ''
	 ORDER BY price_updated_at ASC NULLS FIRST, created_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return s.queryItems(ctx, "list refresh candidates", query, args...)
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.CatalogItem, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_items WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Series != "" {
		query += fmt.Sprintf(` AND series = $%d`, argIdx)
		args = append(args, filter.Series)
		argIdx++
	}
	query += ` ORDER BY series, name, COALESCE(number, '')`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}
	return s.queryItems(ctx, "list items", query, args...)
}

func (s *PostgresStore) queryItems(ctx context.Context, op, query string, args ...any) ([]model.CatalogItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		it, err := scanPgItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		items = append(items, *it)
	}
	return items, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

func (s *PostgresStore) AppendObservations(ctx context.Context, obs []model.PriceObservation) error {
	rows := make([][]any, 0, len(obs))
	for _, o := range prepareObservations(obs) {
		rows = append(rows, []any{
			o.ID, o.CatalogItemID, o.SourceName, o.Price.Amount, o.Price.Currency,
			o.Condition, o.ListingURL, o.ObservedAt,
		})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "price_history", observationColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: append observations")
	}
	return nil
}

func (s *PostgresStore) SetEstimatedValue(ctx context.Context, itemID string, value model.Money, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE catalog_items SET estimated_value = $1, value_currency = $2, price_updated_at = $3, updated_at = $3
		 WHERE id = $4`,
		value.Amount, value.Currency, at.UTC(), itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set estimated value %s", itemID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "item %s", itemID)
	}
	return nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, itemID string) ([]model.PriceObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, catalog_item_id, source_name, amount, currency, condition, listing_url, observed_at
		 FROM price_history WHERE catalog_item_id = $1 ORDER BY observed_at, id`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list observations %s", itemID)
	}
	defer rows.Close()

	var out []model.PriceObservation
	for rows.Next() {
		var o model.PriceObservation
		if err := rows.Scan(&o.ID, &o.CatalogItemID, &o.SourceName, &o.Price.Amount, &o.Price.Currency,
			&o.Condition, &o.ListingURL, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list observations iterate")
}

func (s *PostgresStore) AcquireLease(ctx context.Context, jobType model.JobType, runID, owner string, staleAfter time.Duration) (bool, error) {
	now := time.Now().UTC()

	var got string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_leases (job_type, run_id, owner, acquired_at, heartbeat_at, cancel_requested)
		 VALUES ($1, $2, $3, $4, $4, false)
		 ON CONFLICT (job_type) DO UPDATE SET run_id = EXCLUDED.run_id, owner = EXCLUDED.owner,
		 acquired_at = EXCLUDED.acquired_at, heartbeat_at = EXCLUDED.heartbeat_at, cancel_requested = false
		 WHERE job_leases.heartbeat_at < $5
		 RETURNING run_id`,
		string(jobType), runID, owner, now, now.Add(-staleAfter),
	).Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrapf(err, "postgres: acquire lease %s", jobType)
	}
	return got == runID, nil
}

func (s *PostgresStore) RenewLease(ctx context.Context, jobType model.JobType, runID string) (bool, error) {
	var cancel bool
	err := s.pool.QueryRow(ctx, pgRenewLease, time.Now().UTC(), string(jobType), runID).Scan(&cancel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, eris.Wrapf(ErrLeaseLost, "postgres: renew lease %s", jobType)
		}
		return false, eris.Wrapf(err, "postgres: renew lease %s", jobType)
	}
	return cancel, nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, jobType model.JobType, runID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM job_leases WHERE job_type = $1 AND run_id = $2`,
		string(jobType), runID,
	)
	return eris.Wrapf(err, "postgres: release lease %s", jobType)
}

func (s *PostgresStore) RequestCancel(ctx context.Context, jobType model.JobType) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_leases SET cancel_requested = true WHERE job_type = $1`,
		string(jobType),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: request cancel %s", jobType)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, p *model.BatchProgress) error {
	if p.RunID == "" {
		return eris.New("postgres: save progress: missing run id")
	}
	progressJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal progress")
	}

	_, err = s.pool.Exec(ctx, pgSaveProgress,
		p.RunID, string(p.JobType), string(p.Status), progressJSON, p.HeartbeatAt, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save progress %s", p.RunID)
}

func (s *PostgresStore) LatestProgress(ctx context.Context, jobType model.JobType) (*model.BatchProgress, error) {
	var progressJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT progress FROM job_runs WHERE job_type = $1 ORDER BY created_at DESC LIMIT 1`,
		string(jobType),
	).Scan(&progressJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest progress %s", jobType)
	}

	var p model.BatchProgress
	if err := json.Unmarshal(progressJSON, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal progress")
	}
	return &p, nil
}

func (s *PostgresStore) RecordScrapeTask(ctx context.Context, task model.ScrapeTask) error {
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, pgRecordTask,
		task.Source, task.URL, task.RunID, string(task.Status), task.LastError, task.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: record scrape task %s", task.URL)
}

func (s *PostgresStore) ListScrapeTasks(ctx context.Context, filter TaskFilter) ([]model.ScrapeTask, error) {
	query := `SELECT source, url, run_id, status, attempts, last_error, updated_at FROM scrape_tasks WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, argIdx)
		args = append(args, filter.RunID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scrape tasks")
	}
	defer rows.Close()

	var tasks []model.ScrapeTask
	for rows.Next() {
		var t model.ScrapeTask
		if err := rows.Scan(&t.Source, &t.URL, &t.RunID, &t.Status, &t.Attempts, &t.LastError, &t.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scrape task")
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list scrape tasks iterate")
}

// prepareInsert fills identity and timestamp fields of a new item.
func prepareInsert(item *model.CatalogItem) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.DataSources = nonNil(item.DataSources)
}

func prepareObservations(obs []model.PriceObservation) []model.PriceObservation {
	out := make([]model.PriceObservation, len(obs))
	now := time.Now().UTC()
	for i, o := range obs {
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if o.ObservedAt.IsZero() {
			o.ObservedAt = now
		}
		out[i] = o
	}
	return out
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
