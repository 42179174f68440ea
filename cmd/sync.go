package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/job"
	"github.com/sells-group/catalog-sync/internal/model"
)

var (
	syncLimit   int
	syncJobType string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one small sync in the foreground",
	Long:  "Discovers product URLs from the configured listing pages, then extracts, reconciles and prices at most --limit of them. Interrupting pauses the run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := runSync(ctx, env.Jobs, model.JobType(syncJobType), syncLimit)
		formatProgress(os.Stdout, []model.BatchProgress{p})
		return err
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "max items to process (default schedule.limit)")
	syncCmd.Flags().StringVar(&syncJobType, "job", string(model.JobTypeDiscovery), "job type: discovery_sync or price_refresh")
	rootCmd.AddCommand(syncCmd)
}

// runSync runs one job to completion with a small item cap.
func runSync(ctx context.Context, jobs *job.Controller, jobType model.JobType, limit int) (model.BatchProgress, error) {
	if limit <= 0 {
		limit = cfg.Schedule.Limit
	}
	p, err := jobs.Run(ctx, jobType, model.JobOptions{MaxItems: limit})
	if err != nil {
		return p, eris.Wrapf(err, "sync %s", jobType)
	}
	zap.L().Info("sync finished",
		zap.String("job_type", string(jobType)),
		zap.String("status", string(p.Status)),
		zap.Int("processed", p.ProcessedItems),
		zap.Int("failed", p.FailedItems),
		zap.Int("values_collected", p.ValuesCollected),
	)
	return p, nil
}
