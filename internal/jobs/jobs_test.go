package jobs_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/fingerprint"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/jobs"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/pii"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
)

// fakeSource yields canned records for every domain. A non-nil err is
// yielded before any records, simulating a source that fails at query time.
type fakeSource struct {
	records []etl.Record
	err     error
}

func (f *fakeSource) yieldAll() iter.Seq2[etl.Record, error] {
	return func(yield func(etl.Record, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		for _, r := range f.records {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (f *fakeSource) FetchUserAnalytics(context.Context, etl.TimeWindow, schema.Version) iter.Seq2[etl.Record, error] {
	return f.yieldAll()
}

func (f *fakeSource) FetchOrderAnalytics(context.Context, etl.TimeWindow, schema.Version) iter.Seq2[etl.Record, error] {
	return f.yieldAll()
}

func (f *fakeSource) FetchPaymentAnalytics(context.Context, etl.TimeWindow, schema.Version) iter.Seq2[etl.Record, error] {
	return f.yieldAll()
}

func (f *fakeSource) FetchNotificationAnalytics(context.Context, etl.TimeWindow, schema.Version, []string) iter.Seq2[etl.Record, error] {
	return f.yieldAll()
}

// fakeInserter records every insert and treats all rows as new.
type fakeInserter struct {
	mu     sync.Mutex
	tables map[string][]etl.Record
}

func newFakeInserter() *fakeInserter {
	return &fakeInserter{tables: make(map[string][]etl.Record)}
}

func (f *fakeInserter) InsertBatch(_ context.Context, table string, records []etl.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], records...)
	return len(records), nil
}

func currentPlan() schema.Plan {
	return schema.Plan{
		Schema:      schema.Current,
		ExtractPath: schema.Current,
		Dedup:       fingerprint.Current,
		PII:         schema.Tokenize,
	}
}

func legacyPlan() schema.Plan {
	return schema.Plan{
		Schema:      schema.Legacy,
		ExtractPath: schema.Legacy,
		Dedup:       fingerprint.Legacy,
		PII:         schema.Mask,
	}
}

func testWindow() etl.TimeWindow {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return etl.TimeWindow{Start: start, End: start.AddDate(0, 0, 1)}
}

func TestOrderJobDeduplicatesAndLoads(t *testing.T) {
	dup := etl.Record{
		"order_date": "2025-06-01", "status": "completed",
		"order_count": int64(10), "total_revenue": "1250.75", "avg_order_value": "125.08",
	}
	source := &fakeSource{records: []etl.Record{
		dup,
		dup.Clone(),
		{
			"order_date": "2025-06-01", "status": "pending",
			"order_count": int64(3), "total_revenue": "99.99", "avg_order_value": "33.33",
		},
	}}
	sink := newFakeInserter()

	job := jobs.NewOrderJob(currentPlan(), source, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	require.Equal(t, int64(3), result.Extracted())
	require.Equal(t, int64(2), result.Transformed())
	require.Equal(t, int64(2), result.Loaded())
	require.Equal(t, int64(1), result.Skipped())

	loaded := sink.tables["order_analytics"]
	require.Len(t, loaded, 2)
	require.Equal(t, "1250.75", loaded[0]["total_revenue"])
	require.Equal(t, "99.99", loaded[1]["total_revenue"])
}

func TestOrderJobLegacySchemaUsesFloats(t *testing.T) {
	source := &fakeSource{records: []etl.Record{
		{
			"order_date": "2025-06-01", "status": "completed",
			"order_count": int64(2), "total_revenue": 50.5, "avg_order_value": 25.25,
		},
	}}
	sink := newFakeInserter()

	job := jobs.NewOrderJob(legacyPlan(), source, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	loaded := sink.tables["order_analytics"]
	require.Len(t, loaded, 1)
	require.Equal(t, 50.5, loaded[0]["total_revenue"])
	require.Equal(t, 25.25, loaded[0]["avg_order_value"])
}

func TestOrderJobCountsUnparseableAmounts(t *testing.T) {
	source := &fakeSource{records: []etl.Record{
		{
			"order_date": "2025-06-01", "status": "completed",
			"order_count": int64(1), "total_revenue": "not-a-number", "avg_order_value": "1",
		},
		{
			"order_date": "2025-06-01", "status": "pending",
			"order_count": int64(1), "total_revenue": "10", "avg_order_value": "10",
		},
	}}
	sink := newFakeInserter()

	job := jobs.NewOrderJob(currentPlan(), source, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	require.Equal(t, int64(1), result.Failed())
	require.Equal(t, int64(1), result.Transformed())
}

func TestPaymentJobTokenizesCardData(t *testing.T) {
	tokens, err := pii.NewTokenizer("test-salt")
	require.NoError(t, err)

	source := &fakeSource{records: []etl.Record{
		{
			"payment_date":    "2025-06-01",
			"payment_method":  "credit_card",
			"card_number":     "4111111111111111",
			"cardholder_name": "Jane Doe",
			"transaction_count": int64(200), "successful": int64(50), "failed": int64(150),
			"total_amount": "5000.00", "avg_processing_time": 120.5,
		},
	}}
	sink := newFakeInserter()

	job, err := jobs.NewPaymentJob(currentPlan(), source, tokens, etl.NewLoader(sink, nil), nil)
	require.NoError(t, err)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	loaded := sink.tables["payment_analytics"]
	require.Len(t, loaded, 1)

	metric := loaded[0]
	require.NotContains(t, metric, "card_number")
	require.NotContains(t, metric, "cardholder_name")
	require.Equal(t, "1111", metric["card_last_four"])
	require.Contains(t, metric["card_token"], "crd_")
	require.Equal(t, 25.0, metric["success_rate"])
}

func TestPaymentJobLegacyMasking(t *testing.T) {
	source := &fakeSource{records: []etl.Record{
		{
			"payment_date":   "2025-06-01",
			"payment_method": "credit_card",
			"card_number":    "4111111111111111",
			"transaction_count": int64(4), "successful": int64(4), "failed": int64(0),
			"total_amount": 100.0,
		},
	}}
	sink := newFakeInserter()

	job, err := jobs.NewPaymentJob(legacyPlan(), source, nil, etl.NewLoader(sink, nil), nil)
	require.NoError(t, err)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	metric := sink.tables["payment_analytics"][0]
	require.NotContains(t, metric, "card_number")
	require.Equal(t, "****-****-****-1111", metric["card_display"])
	require.Equal(t, 100.0, metric["total_amount"])
	require.Equal(t, 100.0, metric["success_rate"])
}

func TestPaymentJobRequiresTokenizerForTokenization(t *testing.T) {
	_, err := jobs.NewPaymentJob(currentPlan(), &fakeSource{}, nil, etl.NewLoader(newFakeInserter(), nil), nil)
	require.ErrorIs(t, err, pii.ErrMissingSalt)
}

func TestRate(t *testing.T) {
	require.Equal(t, 25.0, jobs.Rate(50, 200))
	require.Equal(t, 0.0, jobs.Rate(10, 0))
	require.Equal(t, 0.0, jobs.Rate(10, -5))
	require.Equal(t, 33.33, jobs.Rate(1, 3))
	require.Equal(t, 100.0, jobs.Rate(7, 7))
}

func TestNotificationJobRatesAndRollup(t *testing.T) {
	source := &fakeSource{records: []etl.Record{
		{
			"notification_date": "2025-06-01", "channel": "email", "notification_type": "marketing",
			"total_sent": int64(200), "delivered": int64(180), "opened": int64(90), "clicked": int64(45),
			"bounced": int64(15), "failed": int64(5),
		},
		{
			"notification_date": "2025-06-02", "channel": "email", "notification_type": "marketing",
			"total_sent": int64(100), "delivered": int64(20), "opened": int64(10), "clicked": int64(5),
			"bounced": int64(70), "failed": int64(10),
		},
		{
			"notification_date": "2025-06-01", "channel": "sms", "notification_type": "transactional",
			"total_sent": int64(50), "delivered": int64(50), "opened": int64(0), "clicked": int64(0),
			"bounced": int64(0), "failed": int64(0),
		},
	}}
	sink := newFakeInserter()

	job := jobs.NewNotificationJob(currentPlan(), source, nil, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	require.Equal(t, int64(3), result.Loaded())

	metrics := sink.tables["notification_analytics"]
	require.Len(t, metrics, 3)
	require.Equal(t, 90.0, metrics[0]["delivery_rate"])
	require.Equal(t, 50.0, metrics[0]["open_rate"])
	require.Equal(t, int64(15), metrics[0]["bounced"])

	rollup := sink.tables["channel_analytics"]
	require.Len(t, rollup, 2)
	require.Equal(t, "email", rollup[0]["channel"])
	require.Equal(t, int64(300), rollup[0]["total_sent"])
	require.Equal(t, int64(200), rollup[0]["delivered"])
	require.InDelta(t, 66.67, rollup[0]["delivery_rate"], 0.001)
	require.Equal(t, "sms", rollup[1]["channel"])
}

func TestNotificationJobLegacySchemaOmitsBounceLegs(t *testing.T) {
	source := &fakeSource{records: []etl.Record{
		{
			"notification_date": "2025-06-01", "channel": "push", "notification_type": "alert",
			"total_sent": int64(10), "delivered": int64(8), "opened": int64(4), "clicked": int64(1),
		},
	}}
	sink := newFakeInserter()

	job := jobs.NewNotificationJob(legacyPlan(), source, nil, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	metric := sink.tables["notification_analytics"][0]
	require.NotContains(t, metric, "bounced")
	require.NotContains(t, metric, "failed")
	require.Equal(t, 80.0, metric["delivery_rate"])
}

func TestUserJobCurrentSchema(t *testing.T) {
	tokens, err := pii.NewTokenizer("test-salt")
	require.NoError(t, err)

	created := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	source := &fakeSource{records: []etl.Record{
		{
			"user_id": int64(42), "created_at": created, "status": "active",
			"subscription_tier": "premium", "email_verified_at": created.Add(time.Hour),
			"country_code": "US", "signup_source": "organic",
		},
	}}
	sink := newFakeInserter()

	job := jobs.NewUserJob(currentPlan(), source, tokens, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	metric := sink.tables["user_analytics"][0]
	require.Equal(t, tokens.UserToken(42), metric["user_token"])
	require.Equal(t, "2025-06-01", metric["registration_date"])
	require.Equal(t, true, metric["email_verified"])
	require.Equal(t, "premium", metric["subscription_tier"])
	require.NotContains(t, metric, "user_id")
}

func TestUserJobLegacySchema(t *testing.T) {
	created := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	source := &fakeSource{records: []etl.Record{
		{
			"user_id": int64(7), "created_at": created, "status": "active",
			"subscription_type": "basic", "email_verified": true,
		},
	}}
	sink := newFakeInserter()

	job := jobs.NewUserJob(legacyPlan(), source, nil, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusSuccess, result.Status())
	metric := sink.tables["user_analytics"][0]
	require.Equal(t, int64(7), metric["user_id"])
	require.Equal(t, "basic", metric["subscription_type"])
	require.Equal(t, true, metric["email_verified"])
	require.Nil(t, metric["days_since_last_login"])
}

func TestJobFailsWhenExtractErrors(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	sink := newFakeInserter()

	job := jobs.NewOrderJob(currentPlan(), source, etl.NewLoader(sink, nil), nil)
	result := job.Run(context.Background(), testWindow())

	require.Equal(t, etl.StatusFailed, result.Status())
	require.Equal(t, int64(0), result.Extracted())
	require.Equal(t, int64(0), result.Loaded())
	require.NotEmpty(t, result.Errors())
	require.False(t, result.EndTime().IsZero())
	require.Empty(t, sink.tables)
}

func TestChannelRollupRecomputesRates(t *testing.T) {
	rollup := jobs.ChannelRollup([]etl.Record{
		{"channel": "email", "total_sent": int64(100), "delivered": int64(50), "opened": int64(25), "clicked": int64(5)},
		{"channel": "email", "total_sent": int64(100), "delivered": int64(100), "opened": int64(25), "clicked": int64(5)},
	})

	require.Len(t, rollup, 1)
	require.Equal(t, int64(200), rollup[0]["total_sent"])
	require.Equal(t, int64(150), rollup[0]["delivered"])
	require.Equal(t, 75.0, rollup[0]["delivery_rate"])
	require.InDelta(t, 33.33, rollup[0]["open_rate"], 0.001)
}
