package etl

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of a job run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Result is the per-run summary of an ETL job. It is created at job start,
// mutated by the runner while the job executes, finalized once, and never
// mutated after it is returned to the caller.
//
// Counter fields use atomic operations so parallel load workers can account
// their chunks without a shared lock.
type Result struct {
	jobName string
	runID   string

	extracted   atomic.Int64
	transformed atomic.Int64
	loaded      atomic.Int64
	processed   atomic.Int64
	skipped     atomic.Int64
	failed      atomic.Int64

	mu      sync.Mutex
	status  Status
	errors  []string
	started time.Time
	ended   time.Time
}

// NewResult creates a Result for a run of the named job. The run clock
// starts immediately.
func NewResult(jobName string) *Result {
	return &Result{
		jobName: jobName,
		runID:   uuid.NewString(),
		status:  StatusSuccess,
		started: time.Now(),
	}
}

// JobName returns the job this result belongs to.
func (r *Result) JobName() string { return r.jobName }

// RunID returns the unique identifier of this run.
func (r *Result) RunID() string { return r.runID }

// AddExtracted increments the extracted-record count.
func (r *Result) AddExtracted(n int64) { r.extracted.Add(n) }

// AddTransformed increments the transformed-record count.
func (r *Result) AddTransformed(n int64) { r.transformed.Add(n) }

// AddLoaded increments the loaded-record count.
func (r *Result) AddLoaded(n int64) { r.loaded.Add(n) }

// AddSkipped increments the skipped-record count (duplicates).
func (r *Result) AddSkipped(n int64) { r.skipped.Add(n) }

// AddFailed increments the failed-record count (record-level transform
// failures that were dropped without aborting the batch).
func (r *Result) AddFailed(n int64) { r.failed.Add(n) }

// SetProcessed records the processed count. On success this equals the
// loaded count.
func (r *Result) SetProcessed(n int64) { r.processed.Store(n) }

func (r *Result) Extracted() int64   { return r.extracted.Load() }
func (r *Result) Transformed() int64 { return r.transformed.Load() }
func (r *Result) Loaded() int64      { return r.loaded.Load() }
func (r *Result) Processed() int64   { return r.processed.Load() }
func (r *Result) Skipped() int64     { return r.skipped.Load() }
func (r *Result) Failed() int64      { return r.failed.Load() }

// Fail marks the run failed and captures the error message. The status is
// terminal: once failed, a run never reports success.
func (r *Result) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = StatusFailed
	if err != nil {
		r.errors = append(r.errors, err.Error())
	}
}

// Status returns the current run status.
func (r *Result) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Errors returns a copy of the captured error messages.
func (r *Result) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

// Finalize stamps the end time. Idempotent: only the first call sets it.
func (r *Result) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended.IsZero() {
		r.ended = time.Now()
	}
}

// StartTime returns when the run began.
func (r *Result) StartTime() time.Time { return r.started }

// EndTime returns when the run finished, zero if not finalized.
func (r *Result) EndTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// Duration returns the elapsed run time. Zero until finalized.
func (r *Result) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended.IsZero() {
		return 0
	}
	return r.ended.Sub(r.started)
}

// resultJSON is the flat serialized form consumed by orchestrators.
type resultJSON struct {
	JobName            string  `json:"job_name"`
	Status             Status  `json:"status"`
	RecordsExtracted   int64   `json:"records_extracted"`
	RecordsTransformed int64   `json:"records_transformed"`
	RecordsLoaded      int64   `json:"records_loaded"`
	RecordsProcessed   int64   `json:"records_processed"`
	RecordsSkipped     int64   `json:"records_skipped"`
	RecordsFailed      int64   `json:"records_failed"`
	DurationSeconds    float64 `json:"duration_seconds"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time"`
	ErrorCount         int     `json:"error_count"`
}

// MarshalJSON implements json.Marshaler with the flat key set orchestration
// layers expect.
func (r *Result) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	status := r.status
	errCount := len(r.errors)
	ended := r.ended
	r.mu.Unlock()

	var endStr string
	var duration float64
	if !ended.IsZero() {
		endStr = ended.Format(time.RFC3339)
		duration = ended.Sub(r.started).Seconds()
	}

	return json.Marshal(resultJSON{
		JobName:            r.jobName,
		Status:             status,
		RecordsExtracted:   r.Extracted(),
		RecordsTransformed: r.Transformed(),
		RecordsLoaded:      r.Loaded(),
		RecordsProcessed:   r.Processed(),
		RecordsSkipped:     r.Skipped(),
		RecordsFailed:      r.Failed(),
		DurationSeconds:    duration,
		StartTime:          r.started.Format(time.RFC3339),
		EndTime:            endStr,
		ErrorCount:         errCount,
	})
}

// LogValue implements slog.LogValuer for structured logging.
func (r *Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("job_name", r.jobName),
		slog.String("run_id", r.runID),
		slog.String("status", string(r.Status())),
		slog.Int64("extracted", r.Extracted()),
		slog.Int64("transformed", r.Transformed()),
		slog.Int64("loaded", r.Loaded()),
		slog.Int64("skipped", r.Skipped()),
		slog.Int64("failed", r.Failed()),
		slog.Duration("duration", r.Duration()),
	)
}
