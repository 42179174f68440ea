package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sells-group/catalog-sync/internal/model"
)

// formatProgress writes one line per job run to out.
func formatProgress(out io.Writer, runs []model.BatchProgress) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOB\tRUN\tSTATUS\tPROCESSED\tFAILED\tVALUES\tBATCH\tSTARTED\tETA\tLAST_ERROR")
	_, _ = fmt.Fprintln(w, "---\t---\t------\t---------\t------\t------\t-----\t-------\t---\t----------")

	for _, p := range runs {
		lastErr := p.LastError
		if len(lastErr) > 60 {
			lastErr = lastErr[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%d/%d\t%s\t%s\t%s\n",
			p.JobType,
			truncateID(p.RunID),
			p.Status,
			p.ProcessedItems, p.TotalItems,
			p.FailedItems,
			p.ValuesCollected,
			p.CurrentBatchIndex, p.TotalBatches,
			formatTimePtr(p.StartedAt),
			formatTimePtr(p.EstimatedCompletionAt),
			lastErr,
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
