package store

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/config"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
)

// Postgres extracts from the production read replica and loads into the
// analytics warehouse. Extraction queries are throttled by a rate limiter so
// batch windows never saturate the replica.
type Postgres struct {
	source    *pgxpool.Pool
	analytics *pgxpool.Pool
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewPostgres opens connection pools against the source replica and the
// analytics warehouse.
func NewPostgres(ctx context.Context, cfg config.DatabaseSettings, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := newPool(ctx, cfg.SourceURL, cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("connect source: %w", err)
	}

	analytics, err := newPool(ctx, cfg.URL, cfg.PoolSize)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("connect analytics: %w", err)
	}

	qps := cfg.SourceQueriesPerSec
	if qps <= 0 {
		qps = 5
	}

	return &Postgres{
		source:    source,
		analytics: analytics,
		limiter:   rate.NewLimiter(rate.Limit(qps), 1),
		log:       logger,
	}, nil
}

func newPool(ctx context.Context, url string, poolSize int) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		pcfg.MaxConns = int32(poolSize)
	}
	return pgxpool.NewWithConfig(ctx, pcfg)
}

// Close releases both pools.
func (p *Postgres) Close() {
	p.source.Close()
	p.analytics.Close()
}

// FetchUserAnalytics yields one record per user registered in the window.
// The legacy path reads the v1 users table; the current path reads users_v2,
// which carries the pre-tokenized user handle and enrichment columns.
func (p *Postgres) FetchUserAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version) iter.Seq2[etl.Record, error] {
	query := `
		SELECT
			id AS user_id,
			user_token,
			created_at,
			status,
			subscription_tier,
			email_verified_at,
			last_activity_at,
			country_code,
			signup_source
		FROM users_v2
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`
	if version == schema.Legacy {
		query = `
		SELECT
			id AS user_id,
			created_at,
			status,
			subscription_type,
			email_verified,
			last_login_at
		FROM users
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`
	}

	p.log.Info("fetching user analytics",
		"start", window.Start, "end", window.End, "path", version.String())
	return p.query(ctx, query, window.Start, window.End)
}

// FetchOrderAnalytics yields per-day, per-status order revenue aggregates.
func (p *Postgres) FetchOrderAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version) iter.Seq2[etl.Record, error] {
	table := "orders_v2"
	if version == schema.Legacy {
		table = "orders"
	}
	query := fmt.Sprintf(`
		SELECT
			date(created_at) AS order_date,
			status,
			count(*) AS order_count,
			sum(total_amount) AS total_revenue,
			avg(total_amount) AS avg_order_value
		FROM %s
		WHERE created_at >= $1 AND created_at < $2
		  AND status = ANY($3)
		GROUP BY date(created_at), status
		ORDER BY order_date, status`, table)

	statuses := []string{"completed", "pending", "cancelled"}
	p.log.Info("fetching order analytics",
		"start", window.Start, "end", window.End, "path", version.String())
	return p.query(ctx, query, window.Start, window.End, statuses)
}

// FetchPaymentAnalytics yields per-day, per-method payment aggregates.
func (p *Postgres) FetchPaymentAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version) iter.Seq2[etl.Record, error] {
	table := "payments_v2"
	if version == schema.Legacy {
		table = "payments"
	}
	query := fmt.Sprintf(`
		SELECT
			date(created_at) AS payment_date,
			payment_method,
			count(*) AS transaction_count,
			sum(amount) AS total_amount,
			sum(CASE WHEN status = 'success' THEN 1 ELSE 0 END) AS successful,
			sum(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			avg(CASE WHEN status = 'success' THEN processing_time_ms END) AS avg_processing_time
		FROM %s
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY date(created_at), payment_method
		ORDER BY payment_date, payment_method`, table)

	p.log.Info("fetching payment analytics",
		"start", window.Start, "end", window.End, "path", version.String())
	return p.query(ctx, query, window.Start, window.End)
}

// FetchNotificationAnalytics yields per-day, per-channel delivery funnels.
func (p *Postgres) FetchNotificationAnalytics(ctx context.Context, window etl.TimeWindow, version schema.Version, channels []string) iter.Seq2[etl.Record, error] {
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	table := "notifications_v2"
	if version == schema.Legacy {
		table = "notifications"
	}
	query := fmt.Sprintf(`
		SELECT
			date(sent_at) AS notification_date,
			channel,
			notification_type,
			count(*) AS total_sent,
			sum(CASE WHEN delivered_at IS NOT NULL THEN 1 ELSE 0 END) AS delivered,
			sum(CASE WHEN opened_at IS NOT NULL THEN 1 ELSE 0 END) AS opened,
			sum(CASE WHEN clicked_at IS NOT NULL THEN 1 ELSE 0 END) AS clicked,
			sum(CASE WHEN bounced_at IS NOT NULL THEN 1 ELSE 0 END) AS bounced,
			sum(CASE WHEN failed_at IS NOT NULL THEN 1 ELSE 0 END) AS failed
		FROM %s
		WHERE sent_at >= $1 AND sent_at < $2
		  AND channel = ANY($3)
		GROUP BY date(sent_at), channel, notification_type
		ORDER BY notification_date, channel`, table)

	p.log.Info("fetching notification analytics",
		"start", window.Start, "end", window.End,
		"channels", channels, "path", version.String())
	return p.query(ctx, query, window.Start, window.End, channels)
}

// query runs a parameterized query against the source replica and yields
// rows as records, honoring the source rate limiter before each query.
func (p *Postgres) query(ctx context.Context, sql string, args ...any) iter.Seq2[etl.Record, error] {
	return func(yield func(etl.Record, error) bool) {
		if err := p.limiter.Wait(ctx); err != nil {
			yield(nil, fmt.Errorf("source rate limiter: %w", err))
			return
		}

		rows, err := p.source.Query(ctx, sql, args...)
		if err != nil {
			yield(nil, fmt.Errorf("source query: %w", err))
			return
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				if !yield(nil, fmt.Errorf("scan row: %w", err)) {
					return
				}
				continue
			}

			record := make(etl.Record, len(fields))
			for i, fd := range fields {
				record[fd.Name] = values[i]
			}
			if !yield(record, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("source rows: %w", err))
		}
	}
}

// InsertBatch writes records into the warehouse table with
// ON CONFLICT DO NOTHING, so re-loading a window is safe. Returns the count
// of genuinely new rows as reported by the database.
func (p *Postgres) InsertBatch(ctx context.Context, table string, records []etl.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	columns := sortedColumns(records[0])
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	batch := &pgx.Batch{}
	for _, record := range records {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = record[col]
		}
		batch.Queue(query, args...)
	}

	results := p.analytics.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert into %s: %w", table, err)
		}
		inserted += int(tag.RowsAffected())
	}

	p.log.Debug("batch insert complete", "table", table, "inserted", inserted)
	return inserted, nil
}

// sortedColumns returns the record's keys in lexicographic order so the
// generated statement is deterministic for a given record shape.
func sortedColumns(record etl.Record) []string {
	columns := make([]string, 0, len(record))
	for k := range record {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}
