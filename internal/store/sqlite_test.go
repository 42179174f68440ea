package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-sync/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_CloseAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.InsertItem(ctx, &model.CatalogItem{Name: "Batman", Series: "DC Comics"}))
	require.NoError(t, st.Close())

	st, err = NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	got, err := st.FindByNaturalKey(ctx, model.NaturalKey{Name: "Batman", Series: "DC Comics"})
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSQLite_TimeFormatSortsLexically(t *testing.T) {
	early := time.Date(2024, 1, 2, 3, 4, 5, 100, time.UTC)
	late := early.Add(900 * time.Millisecond)
	assert.Less(t, formatTime(early), formatTime(late))

	parsed, err := parseTime(formatTime(late))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(late))

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}

func TestIsSQLiteUnique(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx, `INSERT INTO job_leases (job_type, run_id, owner, acquired_at, heartbeat_at) VALUES ('x', 'r', 'o', 'a', 'a')`)
	require.NoError(t, err)
	_, err = st.db.ExecContext(ctx, `INSERT INTO job_leases (job_type, run_id, owner, acquired_at, heartbeat_at) VALUES ('x', 'r', 'o', 'a', 'a')`)
	require.Error(t, err)
	assert.True(t, isSQLiteUnique(err))
	assert.False(t, isSQLiteUnique(nil))
}
