package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
)

// SQLite is an embedded analytics sink for local runs: the same jobs load
// into a local file instead of the warehouse, with the same duplicate-safe
// insert semantics (INSERT OR IGNORE).
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLite opens (or creates) the local analytics database at path.
func NewSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	return &SQLite{db: db, log: logger}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// analyticsTables are the local warehouse tables. Natural keys mirror the
// warehouse constraints so INSERT OR IGNORE gives the same at-most-once
// behavior.
var analyticsTables = map[string]string{
	"user_analytics": `CREATE TABLE IF NOT EXISTS user_analytics (
		registration_date TEXT,
		user_id INTEGER,
		user_token TEXT,
		status TEXT,
		subscription_type TEXT,
		subscription_tier TEXT,
		email_verified INTEGER,
		days_since_last_login INTEGER,
		days_since_last_activity INTEGER,
		country_code TEXT,
		signup_source TEXT,
		UNIQUE(registration_date, user_id, user_token)
	)`,
	"order_analytics": `CREATE TABLE IF NOT EXISTS order_analytics (
		order_date TEXT,
		status TEXT,
		order_count INTEGER,
		total_revenue TEXT,
		avg_order_value TEXT,
		UNIQUE(order_date, status)
	)`,
	"payment_analytics": `CREATE TABLE IF NOT EXISTS payment_analytics (
		payment_date TEXT,
		payment_method TEXT,
		transaction_count INTEGER,
		total_amount TEXT,
		successful_count INTEGER,
		failed_count INTEGER,
		success_rate REAL,
		avg_processing_time_ms REAL,
		UNIQUE(payment_date, payment_method)
	)`,
	"notification_analytics": `CREATE TABLE IF NOT EXISTS notification_analytics (
		notification_date TEXT,
		channel TEXT,
		notification_type TEXT,
		total_sent INTEGER,
		delivered INTEGER,
		opened INTEGER,
		clicked INTEGER,
		bounced INTEGER,
		failed INTEGER,
		delivery_rate REAL,
		open_rate REAL,
		click_rate REAL,
		click_through_rate REAL,
		UNIQUE(notification_date, channel, notification_type)
	)`,
	"channel_analytics": `CREATE TABLE IF NOT EXISTS channel_analytics (
		channel TEXT,
		total_sent INTEGER,
		delivered INTEGER,
		opened INTEGER,
		clicked INTEGER,
		delivery_rate REAL,
		open_rate REAL,
		click_rate REAL,
		UNIQUE(channel)
	)`,
}

// EnsureSchema creates the analytics tables when missing.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	for table, ddl := range analyticsTables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// InsertBatch writes records with INSERT OR IGNORE inside one transaction
// and returns the count of genuinely new rows.
func (s *SQLite) InsertBatch(ctx context.Context, table string, records []etl.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	columns := sortedColumns(records[0])
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf(
		"INSERT OR IGNORE INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		placeholders,
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, record := range records {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = record[col]
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert tx: %w", err)
	}

	s.log.Debug("batch insert complete", "table", table, "inserted", inserted)
	return inserted, nil
}
