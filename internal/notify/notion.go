package notify

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-sync/pkg/notion"
)

// Notion keeps one page per run in a job-log database, created on start
// and updated with the summary at the end.
type Notion struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a Notion job-log notifier.
func NewNotion(client notion.Client, dbID string) *Notion {
	return &Notion{client: client, dbID: dbID}
}

func (n *Notion) Notify(ctx context.Context, e Event) error {
	p := e.Progress
	row := notion.JobPage{
		Title:      string(e.JobType) + " " + e.RunID,
		RunID:      e.RunID,
		JobType:    string(e.JobType),
		Status:     string(p.Status),
		Processed:  p.ProcessedItems,
		Succeeded:  p.SucceededItems,
		Failed:     p.FailedItems,
		Values:     p.ValuesCollected,
		LastError:  p.LastError,
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
	}
	if _, err := notion.UpsertJobPage(ctx, n.client, n.dbID, row); err != nil {
		return eris.Wrap(err, "notify: notion")
	}
	return nil
}
