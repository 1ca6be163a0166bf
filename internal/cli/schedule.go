package cli

import (
	"github.com/spf13/cobra"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schedule"
)

func (a *app) scheduleCmd() *cobra.Command {
	var (
		cronSpec string
		localDB  string
	)

	cmd := &cobra.Command{
		Use:   "schedule [job...]",
		Short: "Run analytics jobs on a cron schedule until interrupted",
		Long: `Register the named jobs (default: all) on a cron expression and run
them until the process is signalled. Each firing covers the previous full
day; failed runs are retried whole per the ETL retry settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.buildRuntime(ctx, localDB, false)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			selected, err := rt.selectJobs(args)
			if err != nil {
				return err
			}

			sched := schedule.New(a.settings.ETL.MaxRetries, a.settings.ETL.RetryDelay, a.log)
			for _, job := range selected {
				if err := sched.Add(cronSpec, job, nil); err != nil {
					return err
				}
			}

			a.log.Info("scheduler running", "cron", cronSpec, "jobs", len(selected))
			sched.Run(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&cronSpec, "cron", "0 2 * * *", "cron expression for job firings")
	cmd.Flags().StringVar(&localDB, "local-db", "", "load into a local SQLite file instead of the warehouse")
	return cmd
}
