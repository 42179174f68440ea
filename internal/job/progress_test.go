package job

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-sync/internal/model"
)

func TestTrackerRecord(t *testing.T) {
	tr := &tracker{
		p:          model.BatchProgress{TotalItems: 4, TotalBatches: 2, CurrentBatchIndex: 1},
		itemPause:  time.Second,
		batchPause: 10 * time.Second,
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	p := tr.record(200*time.Millisecond, nil, true, now)
	assert.Equal(t, 1, p.ProcessedItems)
	assert.Equal(t, 1, p.SucceededItems)
	assert.Equal(t, 1, p.ValuesCollected)
	assert.Equal(t, int64(200), p.AverageItemMillis)
	require.NotNil(t, p.EstimatedCompletionAt)
	// 3 items left at (200ms + 1s) each, plus one batch pause.
	assert.Equal(t, now.Add(3*1200*time.Millisecond+10*time.Second), *p.EstimatedCompletionAt)

	p = tr.record(400*time.Millisecond, errors.New("blocked"), false, now)
	assert.Equal(t, 2, p.ProcessedItems)
	assert.Equal(t, 1, p.FailedItems)
	assert.Equal(t, "blocked", p.LastError)
	assert.Equal(t, int64(300), p.AverageItemMillis)
	assert.Equal(t, p.ProcessedItems, p.SucceededItems+p.FailedItems)
}

func TestTrackerRecord_AverageDoesNotDriftLow(t *testing.T) {
	tr := &tracker{p: model.BatchProgress{TotalItems: 100}}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	var p model.BatchProgress
	for i := range 100 {
		d := time.Millisecond
		if i%2 == 1 {
			d = 2 * time.Millisecond
		}
		p = tr.record(d, nil, false, now)
	}
	// 1.5ms mean rounds half away from zero.
	assert.Equal(t, int64(2), p.AverageItemMillis)

	tr = &tracker{p: model.BatchProgress{TotalItems: 10}}
	for range 10 {
		p = tr.record(1500*time.Microsecond+400*time.Microsecond, nil, false, now)
	}
	assert.Equal(t, int64(2), p.AverageItemMillis)
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	now := time.Now()
	tr := &tracker{p: model.BatchProgress{StartedAt: &now}}
	snap := tr.snapshot()
	*snap.StartedAt = now.Add(time.Hour)
	assert.Equal(t, now, *tr.snapshot().StartedAt)
}

func TestStaleView(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-10 * time.Minute)
	recent := now.Add(-time.Minute)

	p := staleView(model.BatchProgress{Status: model.JobStatusRunning, HeartbeatAt: &old}, now, 5*time.Minute)
	assert.Equal(t, model.JobStatusError, p.Status)
	assert.Equal(t, staleMessage, p.LastError)

	p = staleView(model.BatchProgress{Status: model.JobStatusRunning, HeartbeatAt: &recent}, now, 5*time.Minute)
	assert.Equal(t, model.JobStatusRunning, p.Status)

	p = staleView(model.BatchProgress{Status: model.JobStatusCompleted, HeartbeatAt: &old}, now, 5*time.Minute)
	assert.Equal(t, model.JobStatusCompleted, p.Status)
}

func TestChunk(t *testing.T) {
	items := make([]WorkItem, 5)
	batches := chunk(items, 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[2], 1)

	assert.Empty(t, chunk(nil, 2))
	assert.Len(t, chunk(items, 10), 1)
}

func TestWindow(t *testing.T) {
	items := []WorkItem{{URL: "a"}, {URL: "b"}, {URL: "c"}}
	assert.Equal(t, items[1:], window(items, 1, 0))
	assert.Equal(t, items[:2], window(items, 0, 2))
	assert.Nil(t, window(items, 3, 0))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "47.50 GBP", formatPrice(model.NewMoney(47.5, "GBP")))
	assert.Equal(t, "12.00", formatPrice(model.Money{Amount: 12}))
}

func TestResolveOptions(t *testing.T) {
	c := &Controller{}
	c.cfg.Batch.BatchSize = 25
	c.cfg.Batch.MaxItems = 100

	opts := c.resolve(model.JobOptions{})
	assert.Equal(t, model.JobOptions{BatchSize: 25, MaxItems: 100}, opts)

	opts = c.resolve(model.JobOptions{BatchSize: 5, MaxItems: 7, StartFrom: 3})
	assert.Equal(t, model.JobOptions{BatchSize: 5, MaxItems: 7, StartFrom: 3}, opts)

	c.cfg.Batch.BatchSize = 0
	assert.Equal(t, 10, c.resolve(model.JobOptions{}).BatchSize)
}
