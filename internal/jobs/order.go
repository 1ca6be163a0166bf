package jobs

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/dedup"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/store"
)

// OrderJob builds per-day, per-status revenue metrics. The current schema
// carries money as exact decimal strings; the legacy schema keeps the old
// float representation.
type OrderJob struct {
	plan   schema.Plan
	source store.Source
	loader *etl.Loader
	log    *slog.Logger
}

// NewOrderJob wires an order analytics job.
func NewOrderJob(plan schema.Plan, source store.Source, loader *etl.Loader, logger *slog.Logger) *OrderJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderJob{plan: plan, source: source, loader: loader, log: logger}
}

// Name implements Job.
func (j *OrderJob) Name() string { return "order_analytics" }

// Run implements Job.
func (j *OrderJob) Run(ctx context.Context, window etl.TimeWindow) *etl.Result {
	return runJob(ctx, j.Name(), "order_analytics", j.loader, j.log,
		func(ctx context.Context) iter.Seq2[etl.Record, error] {
			return j.source.FetchOrderAnalytics(ctx, window, j.plan.ExtractPath)
		},
		j.transform,
		nil,
	)
}

func (j *OrderJob) transform(raw []etl.Record, result *etl.Result) []etl.Record {
	d := dedup.New(j.plan.Dedup)
	unique := d.Batch(raw)
	result.AddSkipped(int64(len(raw) - len(unique)))

	metrics := make([]etl.Record, 0, len(unique))
	for _, record := range unique {
		metric, err := orderMetric(record, j.plan)
		if err != nil {
			j.log.Warn("dropping order record", "error", err)
			result.AddFailed(1)
			continue
		}
		metrics = append(metrics, metric)
	}
	return metrics
}

// orderMetric maps one aggregate order row to its metric shape. Pure: the
// input record is never mutated.
func orderMetric(record etl.Record, plan schema.Plan) (etl.Record, error) {
	metric := etl.Record{
		"order_date":  dateString(record, "order_date"),
		"status":      record.GetString("status"),
		"order_count": record.GetInt("order_count"),
	}

	if plan.Schema == schema.Legacy {
		metric["total_revenue"] = record.GetFloat("total_revenue")
		metric["avg_order_value"] = record.GetFloat("avg_order_value")
		return metric, nil
	}

	revenue, err := decimalString(record["total_revenue"])
	if err != nil {
		return nil, err
	}
	avg, err := decimalString(record["avg_order_value"])
	if err != nil {
		return nil, err
	}
	metric["total_revenue"] = revenue
	metric["avg_order_value"] = avg
	return metric, nil
}

// dateString normalizes a date field that may arrive as a time.Time or as an
// already-formatted string.
func dateString(record etl.Record, key string) string {
	if t, ok := record.GetTime(key); ok {
		return t.Format(time.DateOnly)
	}
	return record.GetString(key)
}
