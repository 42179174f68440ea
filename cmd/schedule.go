package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/model"
)

var scheduleCron string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run sync on a cron schedule",
	Long:  "Runs a discovery sync capped at schedule.limit items every time the cron expression fires. Runs that would overlap are skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		spec := scheduleCron
		if spec == "" {
			spec = cfg.Schedule.Cron
		}

		c, err := newScheduler(ctx, spec, func(ctx context.Context) {
			if _, err := runSync(ctx, env.Jobs, model.JobTypeDiscovery, cfg.Schedule.Limit); err != nil {
				zap.L().Error("scheduled sync failed", zap.Error(err))
			}
		})
		if err != nil {
			return err
		}

		c.Start()
		zap.L().Info("scheduler started", zap.String("cron", spec), zap.Int("limit", cfg.Schedule.Limit))

		<-ctx.Done()
		zap.L().Info("stopping scheduler")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression (default schedule.cron)")
	rootCmd.AddCommand(scheduleCmd)
}

// newScheduler registers fn on a standard five-field cron spec. Descriptors
// such as @hourly are accepted too.
func newScheduler(ctx context.Context, spec string, fn func(ctx context.Context)) (*cron.Cron, error) {
	logger := cron.PrintfLogger(zap.NewStdLog(zap.L()))
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() { fn(ctx) }); err != nil {
		return nil, eris.Wrapf(err, "schedule: invalid cron %q", spec)
	}
	return c, nil
}
