package etl

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Default loader configuration.
const (
	DefaultBatchSize   = 1000
	DefaultLoadWorkers = 1
)

// Inserter is the idempotent batch-insert primitive the loader writes
// through. Implementations must silently ignore records that collide on a
// natural key and report only the count of genuinely new rows, so that
// re-running a window never double-counts.
type Inserter interface {
	InsertBatch(ctx context.Context, table string, records []Record) (int, error)
}

// Loader partitions metric records into fixed-size batches and writes each
// batch through an Inserter. A failing batch is logged and does not abort the
// remaining batches; the load proceeds to completion and reports partial
// success.
type Loader struct {
	inserter  Inserter
	batchSize int
	workers   int
	dryRun    bool
	log       *slog.Logger
}

// NewLoader creates a Loader writing through the given inserter.
func NewLoader(inserter Inserter, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		inserter:  inserter,
		batchSize: DefaultBatchSize,
		workers:   DefaultLoadWorkers,
		log:       logger,
	}
}

// WithBatchSize overrides the records-per-batch size. Values less than 1 are
// ignored.
func (l *Loader) WithBatchSize(n int) *Loader {
	if n >= 1 {
		l.batchSize = n
	}
	return l
}

// WithWorkers overrides the number of concurrent load workers. Batches are
// disjoint and the insert primitive is idempotent, so parallel loading is
// safe; per-batch accounting stays correct through atomic counters. Values
// less than 1 are ignored.
func (l *Loader) WithWorkers(n int) *Loader {
	if n >= 1 {
		l.workers = n
	}
	return l
}

// WithDryRun enables dry-run mode: Load reports the would-be-loaded count
// without invoking the insert primitive at all.
func (l *Loader) WithDryRun(dryRun bool) *Loader {
	l.dryRun = dryRun
	return l
}

// Load writes records to the named table in batches and returns the count
// the insert primitive reported as newly inserted. Batch failures are
// isolated: a failing batch contributes nothing to the count and the
// remaining batches are still attempted.
func (l *Loader) Load(ctx context.Context, table string, records []Record) int64 {
	if len(records) == 0 {
		l.log.Info("no records to load", "table", table)
		return 0
	}

	if l.dryRun {
		l.log.Info("dry run, skipping load", "table", table, "records", len(records))
		return int64(len(records))
	}

	batches := Chunk(records, l.batchSize)
	l.log.Info("loading batches",
		"table", table,
		"records", len(records),
		"batches", len(batches),
	)

	var loaded int64
	if l.workers > 1 {
		loaded = l.loadParallel(ctx, table, batches)
	} else {
		for _, batch := range batches {
			loaded += l.loadOne(ctx, table, batch)
		}
	}

	l.log.Info("load complete", "table", table, "loaded", loaded)
	return loaded
}

// loadParallel loads batches across worker goroutines. Failures stay
// isolated per batch, so workers never abort the group.
func (l *Loader) loadParallel(ctx context.Context, table string, batches [][]Record) int64 {
	var loaded atomic.Int64

	var group errgroup.Group
	group.SetLimit(l.workers)
	for _, batch := range batches {
		group.Go(func() error {
			loaded.Add(l.loadOne(ctx, table, batch))
			return nil
		})
	}
	_ = group.Wait()

	return loaded.Load()
}

func (l *Loader) loadOne(ctx context.Context, table string, batch []Record) int64 {
	inserted, err := l.inserter.InsertBatch(ctx, table, batch)
	if err != nil {
		l.log.Error("failed to load batch",
			"table", table,
			"batch_size", len(batch),
			"error", err,
		)
		return 0
	}
	return int64(inserted)
}
