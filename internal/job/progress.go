package job

import (
	"math"
	"sync"
	"time"

	"github.com/sells-group/catalog-sync/internal/model"
)

// tracker owns the BatchProgress of one run. Readers get copies.
type tracker struct {
	mu sync.Mutex
	p  model.BatchProgress

	itemPause  time.Duration
	batchPause time.Duration

	// elapsed sums item times so the average does not accumulate rounding.
	elapsed time.Duration
}

func (t *tracker) snapshot() model.BatchProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyProgress(t.p)
}

func (t *tracker) update(fn func(p *model.BatchProgress)) model.BatchProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.p)
	return copyProgress(t.p)
}

// record counts one processed item and refreshes the running average and
// projected completion.
func (t *tracker) record(elapsed time.Duration, err error, valueCollected bool, now time.Time) model.BatchProgress {
	return t.update(func(p *model.BatchProgress) {
		p.ProcessedItems++
		if err != nil {
			p.FailedItems++
			p.LastError = err.Error()
		} else {
			p.SucceededItems++
		}
		if valueCollected {
			p.ValuesCollected++
		}

		t.elapsed += elapsed
		mean := float64(t.elapsed) / float64(p.ProcessedItems) / float64(time.Millisecond)
		p.AverageItemMillis = int64(math.Round(mean))

		eta := now.Add(t.remaining(p))
		p.EstimatedCompletionAt = &eta
		p.HeartbeatAt = &now
	})
}

// remaining projects the time left from the average item time plus the
// pauses still ahead.
func (t *tracker) remaining(p *model.BatchProgress) time.Duration {
	left := p.TotalItems - p.ProcessedItems
	if left <= 0 {
		return 0
	}
	d := time.Duration(left) * (time.Duration(p.AverageItemMillis)*time.Millisecond + t.itemPause)
	if ahead := p.TotalBatches - p.CurrentBatchIndex; ahead > 0 {
		d += time.Duration(ahead) * t.batchPause
	}
	return d
}

func copyProgress(p model.BatchProgress) model.BatchProgress {
	cp := p
	cp.StartedAt = copyTime(p.StartedAt)
	cp.EstimatedCompletionAt = copyTime(p.EstimatedCompletionAt)
	cp.FinishedAt = copyTime(p.FinishedAt)
	cp.HeartbeatAt = copyTime(p.HeartbeatAt)
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
