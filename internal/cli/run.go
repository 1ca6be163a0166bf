package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
)

// runFlags are the window and sink options shared by run and run-all.
type runFlags struct {
	start   string
	end     string
	dryRun  bool
	localDB string
}

func (f *runFlags) register(cmd *cobra.Command, localDBDefault string) {
	cmd.Flags().StringVar(&f.start, "start", "", "window start (YYYY-MM-DD or RFC3339), inclusive")
	cmd.Flags().StringVar(&f.end, "end", "", "window end (YYYY-MM-DD or RFC3339), exclusive")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "transform but do not load")
	cmd.Flags().StringVar(&f.localDB, "local-db", localDBDefault, "load into a local SQLite file instead of the warehouse")
}

func (a *app) runCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Run analytics jobs once for a window",
		Long: `Run one or more analytics jobs (user, order, payment, notification)
for a single extraction window, printing each job's result as JSON.
Without --start/--end the window is the previous full day.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.executeRun(cmd, args, flags)
		},
	}

	flags.register(cmd, "")
	return cmd
}

func (a *app) runAllCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run every analytics job against a local SQLite sink",
		Long: `Run all four analytics jobs for one window, loading into a local
SQLite file. Intended for development runs without warehouse access; pass
--local-db "" to load into the configured warehouse instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.executeRun(cmd, jobNames, flags)
		},
	}

	flags.register(cmd, "acme_analytics.db")
	return cmd
}

func (a *app) executeRun(cmd *cobra.Command, args []string, flags *runFlags) error {
	window, err := parseWindow(flags.start, flags.end)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := a.buildRuntime(ctx, flags.localDB, flags.dryRun)
	if err != nil {
		return err
	}
	defer rt.cleanup()

	selected, err := rt.selectJobs(args)
	if err != nil {
		return err
	}

	failed := 0
	for _, job := range selected {
		result := job.Run(ctx, window)
		out, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result for %s: %w", job.Name(), err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		if result.Status() == etl.StatusFailed {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(selected))
	}
	return nil
}

// parseWindow builds the extraction window from the flag pair. Both flags
// empty selects the previous full day; setting exactly one of them is an
// error.
func parseWindow(startStr, endStr string) (etl.TimeWindow, error) {
	if startStr == "" && endStr == "" {
		return etl.PreviousDay(time.Now()), nil
	}
	if startStr == "" || endStr == "" {
		return etl.TimeWindow{}, fmt.Errorf("--start and --end must be given together")
	}

	start, err := parseTimeArg(startStr)
	if err != nil {
		return etl.TimeWindow{}, fmt.Errorf("parse --start: %w", err)
	}
	end, err := parseTimeArg(endStr)
	if err != nil {
		return etl.TimeWindow{}, fmt.Errorf("parse --end: %w", err)
	}
	if !end.After(start) {
		return etl.TimeWindow{}, fmt.Errorf("--end %s is not after --start %s", endStr, startStr)
	}

	return etl.TimeWindow{Start: start, End: end}, nil
}

func parseTimeArg(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
