// Package jobs implements the per-domain analytics ETL jobs: user, order,
// payment, and notification. Each job owns one extract → transform → load
// pass over a time window and reports an [etl.Result]; orchestration,
// scheduling, and retries live outside.
package jobs

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
)

// Job is one runnable analytics domain.
type Job interface {
	// Name identifies the job in results and logs.
	Name() string
	// Run executes the job for one extraction window. Run never returns a
	// Go error: failures are reported in the Result's status and errors,
	// so orchestration layers can always inspect the outcome directly.
	Run(ctx context.Context, window etl.TimeWindow) *etl.Result
}

type extractFunc func(ctx context.Context) iter.Seq2[etl.Record, error]

type transformFunc func(raw []etl.Record, result *etl.Result) []etl.Record

type postLoadFunc func(ctx context.Context, metrics []etl.Record)

// runJob drives one extract → transform → load pass and owns the job-level
// failure tier: an extraction error or anything unexpected escaping
// transform/load marks the run failed, timestamps are finalized, and the
// result is returned rather than an error. Whatever was loaded before a
// failure stays loaded; there is no rollback.
func runJob(
	ctx context.Context,
	name, table string,
	loader *etl.Loader,
	log *slog.Logger,
	extract extractFunc,
	transform transformFunc,
	postLoad postLoadFunc,
) (result *etl.Result) {
	result = etl.NewResult(name)
	log = log.With("job", name, "run_id", result.RunID())

	defer func() {
		if r := recover(); r != nil {
			result.Fail(fmt.Errorf("unexpected failure: %v", r))
		}
		result.Finalize()
		if result.Status() == etl.StatusFailed {
			log.Error("job failed", "result", result, "errors", result.Errors())
		} else {
			log.Info("job complete", "result", result)
		}
	}()

	log.Info("starting job")

	var raw []etl.Record
	for record, err := range extract(ctx) {
		if err != nil {
			result.Fail(fmt.Errorf("extract: %w", err))
			return result
		}
		raw = append(raw, record)
	}
	result.AddExtracted(int64(len(raw)))

	metrics := transform(raw, result)
	result.AddTransformed(int64(len(metrics)))

	loaded := loader.Load(ctx, table, metrics)
	result.AddLoaded(loaded)
	result.SetProcessed(loaded)

	if postLoad != nil {
		postLoad(ctx, metrics)
	}

	return result
}

// Rate derives a percentage from a numerator/denominator pair, rounded to 2
// decimals. A non-positive denominator yields 0, not an error, so empty
// funnels report zero rates instead of aborting a batch.
func Rate(numerator, denominator int64) float64 {
	if denominator <= 0 {
		return 0.0
	}
	return math.Round(float64(numerator)/float64(denominator)*100*100) / 100
}
