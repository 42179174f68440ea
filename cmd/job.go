package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-sync/internal/job"
	"github.com/sells-group/catalog-sync/internal/model"
	"github.com/sells-group/catalog-sync/internal/store"
)

var jobTypes = []model.JobType{model.JobTypePriceRefresh, model.JobTypeDiscovery}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect or stop batch jobs",
	Long:  "Reads and controls job state through the persisted store, so it works against runs owned by any process.",
}

var jobStatusCmd = &cobra.Command{
	Use:       "status [job-type]",
	Short:     "Show the latest run of each job type",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(model.JobTypePriceRefresh), string(model.JobTypeDiscovery)},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return jobStatus(ctx, os.Stdout, st, selectJobTypes(args))
	},
}

var jobStopCmd = &cobra.Command{
	Use:       "stop <job-type>",
	Short:     "Request a running job to pause",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(model.JobTypePriceRefresh), string(model.JobTypeDiscovery)},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := storeController(st).Stop(ctx, model.JobType(args[0]))
		if err != nil {
			return eris.Wrap(err, "job stop")
		}
		formatProgress(os.Stdout, []model.BatchProgress{p})
		return nil
	},
}

func init() {
	jobCmd.AddCommand(jobStatusCmd, jobStopCmd)
	rootCmd.AddCommand(jobCmd)
}

// storeController returns a controller that can only report and stop runs.
func storeController(st store.Store) *job.Controller {
	return job.New(job.Deps{Store: st}, job.Config{Batch: cfg.Batch})
}

func selectJobTypes(args []string) []model.JobType {
	if len(args) == 0 {
		return jobTypes
	}
	return []model.JobType{model.JobType(args[0])}
}

func jobStatus(ctx context.Context, out io.Writer, st store.Store, types []model.JobType) error {
	jobs := storeController(st)
	var all []model.BatchProgress
	for _, t := range types {
		p, err := jobs.Status(ctx, t)
		if err != nil {
			return eris.Wrap(err, "job status")
		}
		all = append(all, p)
	}
	formatProgress(out, all)
	return nil
}
