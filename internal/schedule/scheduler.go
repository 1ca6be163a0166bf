// Package schedule runs the analytics jobs on cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/jobs"
)

// maxRetryDelay caps the exponential backoff between job retries.
const maxRetryDelay = 5 * time.Minute

// WindowFunc derives the extraction window for a scheduled firing from the
// firing time.
type WindowFunc func(now time.Time) etl.TimeWindow

// Scheduler runs registered jobs on cron expressions. Retries wrap the whole
// job invocation: a failed run is re-extracted and re-transformed from
// scratch, which is safe because loads are idempotent.
type Scheduler struct {
	cron       *cron.Cron
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

// New creates a Scheduler with standard 5-field cron expressions.
func New(maxRetries int, retryDelay time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:       cron.New(),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        logger,
	}
}

// Add registers a job on a cron expression. The window function derives each
// firing's extraction window; nil selects the previous full day.
func (s *Scheduler) Add(spec string, job jobs.Job, window WindowFunc) error {
	if window == nil {
		window = etl.PreviousDay
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.RunOnce(context.Background(), job, window(time.Now()))
	})
	if err != nil {
		return fmt.Errorf("schedule %s on %q: %w", job.Name(), spec, err)
	}

	s.log.Info("job scheduled", "job", job.Name(), "cron", spec)
	return nil
}

// RunOnce executes one job invocation with retries around the whole run.
// The returned error reflects the final attempt only.
func (s *Scheduler) RunOnce(ctx context.Context, job jobs.Job, window etl.TimeWindow) error {
	err := etl.Retry(ctx, s.maxRetries, s.retryDelay, maxRetryDelay,
		func(ctx context.Context) error {
			result := job.Run(ctx, window)
			if result.Status() == etl.StatusFailed {
				return fmt.Errorf("%s: %s", job.Name(), strings.Join(result.Errors(), "; "))
			}
			return nil
		})
	if err != nil {
		s.log.Error("scheduled job gave up",
			"job", job.Name(),
			"window_start", window.Start,
			"window_end", window.End,
			"error", err,
		)
	}
	return err
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Run launches the cron loop and blocks until the context is cancelled, then
// waits for any in-flight job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
}

// Stop halts scheduling and returns once in-flight jobs complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
