package jobs

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/dedup"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/pii"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/store"
)

// UserJob builds per-user registration metrics. The current schema emits a
// tokenized user handle and enrichment fields; the legacy schema emits the
// narrower v1 shape keyed by raw user ID.
type UserJob struct {
	plan   schema.Plan
	source store.Source
	tokens *pii.Tokenizer
	loader *etl.Loader
	log    *slog.Logger
}

// NewUserJob wires a user analytics job. The tokenizer may be nil on the
// legacy path; the current path derives user tokens from it when the source
// row carries none.
func NewUserJob(plan schema.Plan, source store.Source, tokens *pii.Tokenizer, loader *etl.Loader, logger *slog.Logger) *UserJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserJob{plan: plan, source: source, tokens: tokens, loader: loader, log: logger}
}

// Name implements Job.
func (j *UserJob) Name() string { return "user_analytics" }

// Run implements Job.
func (j *UserJob) Run(ctx context.Context, window etl.TimeWindow) *etl.Result {
	return runJob(ctx, j.Name(), "user_analytics", j.loader, j.log,
		func(ctx context.Context) iter.Seq2[etl.Record, error] {
			return j.source.FetchUserAnalytics(ctx, window, j.plan.ExtractPath)
		},
		j.transform,
		nil,
	)
}

func (j *UserJob) transform(raw []etl.Record, result *etl.Result) []etl.Record {
	d := dedup.New(j.plan.Dedup)
	unique := d.Batch(raw)
	result.AddSkipped(int64(len(raw) - len(unique)))

	metrics := make([]etl.Record, 0, len(unique))
	for _, record := range unique {
		metric, err := userMetric(record, j.plan, j.tokens)
		if err != nil {
			j.log.Warn("dropping user record", "error", err)
			result.AddFailed(1)
			continue
		}
		metrics = append(metrics, metric)
	}
	return metrics
}

// userMetric maps one source user row to its metric shape. Pure: the input
// record is never mutated.
func userMetric(record etl.Record, plan schema.Plan, tokens *pii.Tokenizer) (etl.Record, error) {
	created, ok := record.GetTime("created_at")
	if !ok {
		return nil, errMissingField("created_at")
	}

	if plan.Schema == schema.Legacy {
		metric := etl.Record{
			"user_id":           record.GetInt("user_id"),
			"registration_date": created.Format(time.DateOnly),
			"status":            record.GetString("status"),
			"subscription_type": record.GetString("subscription_type"),
			"email_verified":    record["email_verified"] == true,
		}
		if last, ok := record.GetTime("last_login_at"); ok {
			metric["days_since_last_login"] = daysSince(last)
		} else {
			metric["days_since_last_login"] = nil
		}
		return metric, nil
	}

	token := record.GetString("user_token")
	if token == "" && tokens != nil {
		token = tokens.UserToken(record.GetInt("user_id"))
	}

	metric := etl.Record{
		"user_token":        token,
		"registration_date": created.Format(time.DateOnly),
		"status":            record.GetString("status"),
		"subscription_tier": record.GetString("subscription_tier"),
		"email_verified":    record.Has("email_verified_at"),
		"country_code":      record.GetString("country_code"),
		"signup_source":     record.GetString("signup_source"),
	}
	if last, ok := record.GetTime("last_activity_at"); ok {
		metric["days_since_last_activity"] = daysSince(last)
	} else {
		metric["days_since_last_activity"] = nil
	}
	return metric, nil
}

// daysSince floors the whole days elapsed since t, never negative.
func daysSince(t time.Time) int64 {
	days := int64(time.Since(t).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
