package jobs

import (
	"context"
	"iter"
	"log/slog"
	"sort"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/dedup"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/store"
)

// NotificationJob builds per-day, per-channel delivery funnel metrics, plus a
// cross-day channel rollup loaded as a secondary output.
type NotificationJob struct {
	plan     schema.Plan
	source   store.Source
	channels []string
	loader   *etl.Loader
	log      *slog.Logger
}

// NewNotificationJob wires a notification analytics job. A nil channels
// slice selects the default channel set.
func NewNotificationJob(plan schema.Plan, source store.Source, channels []string, loader *etl.Loader, logger *slog.Logger) *NotificationJob {
	if len(channels) == 0 {
		channels = store.DefaultChannels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationJob{plan: plan, source: source, channels: channels, loader: loader, log: logger}
}

// Name implements Job.
func (j *NotificationJob) Name() string { return "notification_analytics" }

// Run implements Job. The channel rollup is loaded after the primary metrics;
// rollup rows are derived data and do not count toward the run's loaded
// total.
func (j *NotificationJob) Run(ctx context.Context, window etl.TimeWindow) *etl.Result {
	return runJob(ctx, j.Name(), "notification_analytics", j.loader, j.log,
		func(ctx context.Context) iter.Seq2[etl.Record, error] {
			return j.source.FetchNotificationAnalytics(ctx, window, j.plan.ExtractPath, j.channels)
		},
		j.transform,
		func(ctx context.Context, metrics []etl.Record) {
			rollup := ChannelRollup(metrics)
			if len(rollup) == 0 {
				return
			}
			j.loader.Load(ctx, "channel_analytics", rollup)
		},
	)
}

func (j *NotificationJob) transform(raw []etl.Record, result *etl.Result) []etl.Record {
	d := dedup.New(j.plan.Dedup)
	unique := d.Batch(raw)
	result.AddSkipped(int64(len(raw) - len(unique)))

	metrics := make([]etl.Record, 0, len(unique))
	for _, record := range unique {
		metrics = append(metrics, notificationMetric(record, j.plan))
	}
	return metrics
}

// notificationMetric maps one aggregate funnel row to its metric shape. The
// current schema adds the bounce and failure legs of the funnel; the legacy
// shape predates them. Pure: the input record is never mutated.
func notificationMetric(record etl.Record, plan schema.Plan) etl.Record {
	sent := record.GetInt("total_sent")
	delivered := record.GetInt("delivered")
	opened := record.GetInt("opened")
	clicked := record.GetInt("clicked")

	metric := etl.Record{
		"notification_date":  dateString(record, "notification_date"),
		"channel":            record.GetString("channel"),
		"notification_type":  record.GetString("notification_type"),
		"total_sent":         sent,
		"delivered":          delivered,
		"opened":             opened,
		"clicked":            clicked,
		"delivery_rate":      Rate(delivered, sent),
		"open_rate":          Rate(opened, delivered),
		"click_rate":         Rate(clicked, opened),
		"click_through_rate": Rate(clicked, delivered),
	}

	if plan.Schema == schema.Current {
		metric["bounced"] = record.GetInt("bounced")
		metric["failed"] = record.GetInt("failed")
	}

	return metric
}

// ChannelRollup aggregates per-day funnel metrics into one row per channel,
// recomputing the rates over the summed counts. Output is sorted by channel.
func ChannelRollup(metrics []etl.Record) []etl.Record {
	groups := etl.GroupBy(metrics, func(m etl.Record) string {
		return m.GetString("channel")
	})

	rollup := make([]etl.Record, 0, len(groups))
	for channel, rows := range groups {
		var sent, delivered, opened, clicked int64
		for _, row := range rows {
			sent += row.GetInt("total_sent")
			delivered += row.GetInt("delivered")
			opened += row.GetInt("opened")
			clicked += row.GetInt("clicked")
		}
		rollup = append(rollup, etl.Record{
			"channel":       channel,
			"total_sent":    sent,
			"delivered":     delivered,
			"opened":        opened,
			"clicked":       clicked,
			"delivery_rate": Rate(delivered, sent),
			"open_rate":     Rate(opened, delivered),
			"click_rate":    Rate(clicked, opened),
		})
	}

	sort.Slice(rollup, func(i, j int) bool {
		return rollup[i].GetString("channel") < rollup[j].GetString("channel")
	})
	return rollup
}
