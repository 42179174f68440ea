package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/catalog-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// Timestamps are stored as fixed-width UTC text so they compare correctly
// as strings.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS catalog_items (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	series           TEXT NOT NULL DEFAULT '',
	number           TEXT,
	category         TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	source_url       TEXT,
	estimated_value  REAL,
	value_currency   TEXT NOT NULL DEFAULT '',
	is_exclusive     INTEGER NOT NULL DEFAULT 0,
	is_chase         INTEGER NOT NULL DEFAULT 0,
	is_vaulted       INTEGER NOT NULL DEFAULT 0,
	variant          TEXT NOT NULL DEFAULT '',
	data_sources     TEXT NOT NULL DEFAULT '[]',
	price_updated_at TEXT,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_catalog_items_natural_key
	ON catalog_items (name, series, COALESCE(number, ''));
CREATE INDEX IF NOT EXISTS idx_catalog_items_price_updated_at ON catalog_items(price_updated_at);

CREATE TABLE IF NOT EXISTS price_history (
	id              TEXT PRIMARY KEY,
	catalog_item_id TEXT NOT NULL REFERENCES catalog_items(id) ON DELETE CASCADE,
	source_name     TEXT NOT NULL,
	amount          REAL NOT NULL,
	currency        TEXT NOT NULL,
	condition       TEXT NOT NULL DEFAULT '',
	listing_url     TEXT NOT NULL DEFAULT '',
	observed_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_history_item ON price_history(catalog_item_id, observed_at);

CREATE TABLE IF NOT EXISTS job_runs (
	run_id       TEXT PRIMARY KEY,
	job_type     TEXT NOT NULL,
	status       TEXT NOT NULL,
	progress     TEXT NOT NULL,
	heartbeat_at TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_runs_type_created ON job_runs(job_type, created_at);

CREATE TABLE IF NOT EXISTS job_leases (
	job_type         TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	owner            TEXT NOT NULL,
	acquired_at      TEXT NOT NULL,
	heartbeat_at     TEXT NOT NULL,
	cancel_requested INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scrape_tasks (
	source     TEXT NOT NULL,
	url        TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	status     TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	PRIMARY KEY (source, url)
);

CREATE INDEX IF NOT EXISTS idx_scrape_tasks_run ON scrape_tasks(run_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.CatalogItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM catalog_items
		 WHERE name = ? AND series = ? AND COALESCE(number, '') = ?`,
		key.Name, key.Series, key.NumberValue(),
	)
	it, err := scanSQLiteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find item %s", key)
	}
	return it, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*model.CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = ?`, id)
	it, err := scanSQLiteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get item %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get item %s", id)
	}
	return it, nil
}

func (s *SQLiteStore) InsertItem(ctx context.Context, item *model.CatalogItem) error {
	prepareInsert(item)

	sources, err := json.Marshal(item.DataSources)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal data sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO catalog_items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Series, item.Number, item.Category, item.Description,
		item.ImageURL, nullIfEmpty(item.SourceURL), item.EstimatedValue, item.ValueCurrency,
		item.IsExclusive, item.IsChase, item.IsVaulted, item.Variant, string(sources),
		formatNullTime(item.PriceUpdatedAt), formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrDuplicate, "sqlite: insert item %s", item.Key())
		}
		return eris.Wrapf(err, "sqlite: insert item %s", item.Key())
	}
	return nil
}

func (s *SQLiteStore) UpdateItem(ctx context.Context, item *model.CatalogItem) error {
	item.UpdatedAt = time.Now().UTC()

	sources, err := json.Marshal(nonNil(item.DataSources))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal data sources")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_items SET name = ?, series = ?, number = ?, category = ?, description = ?,
		 image_url = ?, source_url = ?, is_exclusive = ?, is_chase = ?, is_vaulted = ?,
		 variant = ?, data_sources = ?, updated_at = ? WHERE id = ?`,
		item.Name, item.Series, item.Number, item.Category, item.Description, item.ImageURL,
		nullIfEmpty(item.SourceURL), item.IsExclusive, item.IsChase, item.IsVaulted, item.Variant,
		string(sources), formatTime(item.UpdatedAt), item.ID,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrDuplicate, "sqlite: update item %s", item.ID)
		}
		return eris.Wrapf(err, "sqlite: update item %s", item.ID)
	}
	return checkRowsAffected(res, "item", item.ID)
}

func (s *SQLiteStore) ListRefreshCandidates(ctx context.Context, limit int) ([]model.CatalogItem, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_items
	 WHERE source_url IS NOT NULL AND source_url <> ''
	 ORDER BY price_updated_at ASC NULLS FIRST, created_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryItems(ctx, "list refresh candidates", query, args...)
}

func (s *SQLiteStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.CatalogItem, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_items WHERE 1=1`
	var args []any

	if filter.Series != "" {
		query += ` AND series = ?`
		args = append(args, filter.Series)
	}
	query += ` ORDER BY series, name, COALESCE(number, '') LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}
	return s.queryItems(ctx, "list items", query, args...)
}

func (s *SQLiteStore) queryItems(ctx context.Context, op, query string, args ...any) ([]model.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		it, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		items = append(items, *it)
	}
	return items, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func (s *SQLiteStore) AppendObservations(ctx context.Context, obs []model.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append observations")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_history (`+strings.Join(observationColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare append observations")
	}
	defer stmt.Close()

	for _, o := range prepareObservations(obs) {
		if _, err := stmt.ExecContext(ctx,
			o.ID, o.CatalogItemID, o.SourceName, o.Price.Amount, o.Price.Currency,
			o.Condition, o.ListingURL, formatTime(o.ObservedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert observation for %s", o.CatalogItemID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit observations")
}

func (s *SQLiteStore) SetEstimatedValue(ctx context.Context, itemID string, value model.Money, at time.Time) error {
	ts := formatTime(at)
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_items SET estimated_value = ?, value_currency = ?, price_updated_at = ?, updated_at = ?
		 WHERE id = ?`,
		value.Amount, value.Currency, ts, ts, itemID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set estimated value %s", itemID)
	}
	return checkRowsAffected(res, "item", itemID)
}

func (s *SQLiteStore) ListObservations(ctx context.Context, itemID string) ([]model.PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(observationColumns, ", ")+`
		 FROM price_history WHERE catalog_item_id = ? ORDER BY observed_at, id`,
		itemID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list observations %s", itemID)
	}
	defer rows.Close()

	var out []model.PriceObservation
	for rows.Next() {
		var o model.PriceObservation
		var observedAt string
		if err := rows.Scan(&o.ID, &o.CatalogItemID, &o.SourceName, &o.Price.Amount, &o.Price.Currency,
			&o.Condition, &o.ListingURL, &observedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if o.ObservedAt, err = parseTime(observedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list observations iterate")
}

func (s *SQLiteStore) AcquireLease(ctx context.Context, jobType model.JobType, runID, owner string, staleAfter time.Duration) (bool, error) {
	now := time.Now().UTC()

	var got string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO job_leases (job_type, run_id, owner, acquired_at, heartbeat_at, cancel_requested)
		 VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT (job_type) DO UPDATE SET run_id = excluded.run_id, owner = excluded.owner,
		 acquired_at = excluded.acquired_at, heartbeat_at = excluded.heartbeat_at, cancel_requested = 0
		 WHERE job_leases.heartbeat_at < ?
		 RETURNING run_id`,
		string(jobType), runID, owner, formatTime(now), formatTime(now), formatTime(now.Add(-staleAfter)),
	).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: acquire lease %s", jobType)
	}
	return got == runID, nil
}

func (s *SQLiteStore) RenewLease(ctx context.Context, jobType model.JobType, runID string) (bool, error) {
	var cancel bool
	err := s.db.QueryRowContext(ctx,
		`UPDATE job_leases SET heartbeat_at = ? WHERE job_type = ? AND run_id = ? RETURNING cancel_requested`,
		formatTime(time.Now()), string(jobType), runID,
	).Scan(&cancel)
	if errors.Is(err, sql.ErrNoRows) {
		return false, eris.Wrapf(ErrLeaseLost, "sqlite: renew lease %s", jobType)
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: renew lease %s", jobType)
	}
	return cancel, nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, jobType model.JobType, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM job_leases WHERE job_type = ? AND run_id = ?`,
		string(jobType), runID,
	)
	return eris.Wrapf(err, "sqlite: release lease %s", jobType)
}

func (s *SQLiteStore) RequestCancel(ctx context.Context, jobType model.JobType) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_leases SET cancel_requested = 1 WHERE job_type = ?`,
		string(jobType),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: request cancel %s", jobType)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SaveProgress(ctx context.Context, p *model.BatchProgress) error {
	if p.RunID == "" {
		return eris.New("sqlite: save progress: missing run id")
	}
	progressJSON, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}

	now := formatTime(time.Now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_runs (run_id, job_type, status, progress, heartbeat_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET status = excluded.status, progress = excluded.progress,
		 heartbeat_at = excluded.heartbeat_at, updated_at = excluded.updated_at`,
		p.RunID, string(p.JobType), string(p.Status), string(progressJSON),
		formatNullTime(p.HeartbeatAt), now, now,
	)
	return eris.Wrapf(err, "sqlite: save progress %s", p.RunID)
}

func (s *SQLiteStore) LatestProgress(ctx context.Context, jobType model.JobType) (*model.BatchProgress, error) {
	var progressJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT progress FROM job_runs WHERE job_type = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		string(jobType),
	).Scan(&progressJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest progress %s", jobType)
	}

	var p model.BatchProgress
	if err := json.Unmarshal([]byte(progressJSON), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal progress")
	}
	return &p, nil
}

func (s *SQLiteStore) RecordScrapeTask(ctx context.Context, task model.ScrapeTask) error {
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_tasks (source, url, run_id, status, attempts, last_error, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (source, url) DO UPDATE SET run_id = excluded.run_id, status = excluded.status,
		 attempts = scrape_tasks.attempts + 1, last_error = excluded.last_error, updated_at = excluded.updated_at`,
		task.Source, task.URL, task.RunID, string(task.Status), task.LastError, formatTime(task.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: record scrape task %s", task.URL)
}

func (s *SQLiteStore) ListScrapeTasks(ctx context.Context, filter TaskFilter) ([]model.ScrapeTask, error) {
	query := `SELECT source, url, run_id, status, attempts, last_error, updated_at FROM scrape_tasks WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scrape tasks")
	}
	defer rows.Close()

	var tasks []model.ScrapeTask
	for rows.Next() {
		var t model.ScrapeTask
		var updatedAt string
		if err := rows.Scan(&t.Source, &t.URL, &t.RunID, &t.Status, &t.Attempts, &t.LastError, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scrape task")
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list scrape tasks iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteItem(row scannable) (*model.CatalogItem, error) {
	var it model.CatalogItem
	var number, sourceURL, priceUpdatedAt sql.NullString
	var value sql.NullFloat64
	var sources, createdAt, updatedAt string

	err := row.Scan(&it.ID, &it.Name, &it.Series, &number, &it.Category, &it.Description,
		&it.ImageURL, &sourceURL, &value, &it.ValueCurrency, &it.IsExclusive,
		&it.IsChase, &it.IsVaulted, &it.Variant, &sources, &priceUpdatedAt,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if number.Valid {
		it.Number = &number.String
	}
	it.SourceURL = sourceURL.String
	if value.Valid {
		it.EstimatedValue = &value.Float64
	}
	if err := json.Unmarshal([]byte(sources), &it.DataSources); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal data sources")
	}
	if priceUpdatedAt.Valid {
		t, err := parseTime(priceUpdatedAt.String)
		if err != nil {
			return nil, err
		}
		it.PriceUpdatedAt = &t
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
