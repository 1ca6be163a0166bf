// Package store implements the extraction and load contracts against real
// stores: a Postgres pair (production replica as source, warehouse as sink)
// for deployed runs, and an embedded SQLite file for local runs.
package store

import (
	"context"
	"iter"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
)

// Source is the extraction contract the jobs consume. Each method yields
// the flat aggregate records for one domain over a half-open window
// [start, end), and must be idempotent for identical windows.
//
// The version parameter selects the legacy or current extraction path; both
// run parameterized queries — the injection-prone string-built queries of
// the old pipeline are a defect that was eliminated, not ported.
type Source interface {
	FetchUserAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version) iter.Seq2[etl.Record, error]
	FetchOrderAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version) iter.Seq2[etl.Record, error]
	FetchPaymentAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version) iter.Seq2[etl.Record, error]
	FetchNotificationAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version, channels []string) iter.Seq2[etl.Record, error]
}

// DefaultChannels is the notification channel filter applied when the
// caller does not name any.
var DefaultChannels = []string{"email", "sms", "push"}
