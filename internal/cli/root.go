// Package cli wires the acme-etl command tree: one-shot runs and the cron
// scheduler, over shared configuration and logging.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/config"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/jobs"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/logging"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/pii"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/store"
)

type app struct {
	configPath string
	settings   config.Settings
	log        *slog.Logger
	logCloser  io.Closer
}

// New builds the acme-etl root command.
func New() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "acme-etl",
		Short:         "Batch analytics ETL for the Acme shop warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.settings = settings

			logger, closer, err := logging.Setup(
				settings.Logging.Level,
				settings.Logging.Format,
				settings.Logging.File,
			)
			if err != nil {
				return err
			}
			a.log = logger
			a.logCloser = closer
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logCloser != nil {
				a.logCloser.Close() //nolint:errcheck
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file overlaying the environment")

	root.AddCommand(a.runCmd())
	root.AddCommand(a.runAllCmd())
	root.AddCommand(a.scheduleCmd())
	return root
}

// runtime bundles everything a command needs to execute jobs.
type runtime struct {
	jobs    map[string]jobs.Job
	cleanup func()
}

// jobNames is the fixed job registry order, so "all" runs deterministically.
var jobNames = []string{"user", "order", "payment", "notification"}

// buildRuntime connects the stores and constructs every job under the run
// plan derived from the feature flags. When localDB is set, loads go to an
// embedded SQLite file instead of the warehouse; extraction still reads from
// the configured source.
func (a *app) buildRuntime(ctx context.Context, localDB string, dryRun bool) (*runtime, error) {
	plan := schema.PlanFor(a.settings.Flags)
	a.log.Info("run plan resolved", "plan", plan)

	var tokens *pii.Tokenizer
	if salt := a.settings.PII.TokenizationSalt; salt != "" {
		var err error
		if tokens, err = pii.NewTokenizer(salt); err != nil {
			return nil, err
		}
	}
	if plan.PII == schema.Tokenize && tokens == nil {
		return nil, fmt.Errorf("run plan requires tokenization: %w", pii.ErrMissingSalt)
	}

	pg, err := store.NewPostgres(ctx, a.settings.Database, a.log)
	if err != nil {
		return nil, err
	}

	var inserter etl.Inserter = pg
	cleanup := pg.Close
	if localDB != "" {
		local, err := store.NewSQLite(localDB, a.log)
		if err != nil {
			pg.Close()
			return nil, err
		}
		if err := local.EnsureSchema(ctx); err != nil {
			pg.Close()
			local.Close() //nolint:errcheck
			return nil, err
		}
		inserter = local
		cleanup = func() {
			pg.Close()
			local.Close() //nolint:errcheck
		}
	}

	loader := etl.NewLoader(inserter, a.log).
		WithBatchSize(a.settings.ETL.BatchSize).
		WithWorkers(a.settings.ETL.LoadWorkers).
		WithDryRun(dryRun)

	payment, err := jobs.NewPaymentJob(plan, pg, tokens, loader, a.log)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &runtime{
		jobs: map[string]jobs.Job{
			"user":         jobs.NewUserJob(plan, pg, tokens, loader, a.log),
			"order":        jobs.NewOrderJob(plan, pg, loader, a.log),
			"payment":      payment,
			"notification": jobs.NewNotificationJob(plan, pg, nil, loader, a.log),
		},
		cleanup: cleanup,
	}, nil
}

// selectJobs resolves job name arguments against the registry. No arguments
// or "all" selects every job in registry order.
func (r *runtime) selectJobs(args []string) ([]jobs.Job, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "all") {
		args = jobNames
	}

	selected := make([]jobs.Job, 0, len(args))
	for _, name := range args {
		job, ok := r.jobs[name]
		if !ok {
			return nil, fmt.Errorf("unknown job %q (want one of %v, or all)", name, jobNames)
		}
		selected = append(selected, job)
	}
	return selected, nil
}
