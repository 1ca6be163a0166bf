package jobs

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/dedup"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/etl"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/pii"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/store"
)

// PaymentJob builds per-day, per-method payment metrics. Card data never
// reaches the warehouse in the clear: depending on the plan's PII mode,
// sensitive fields are either tokenized or masked before the metric is built.
type PaymentJob struct {
	plan   schema.Plan
	source store.Source
	tokens *pii.Tokenizer
	loader *etl.Loader
	log    *slog.Logger
}

// NewPaymentJob wires a payment analytics job. A tokenizer is mandatory when
// the plan calls for tokenization; failing at construction beats emitting
// cleartext card data at 2am.
func NewPaymentJob(plan schema.Plan, source store.Source, tokens *pii.Tokenizer, loader *etl.Loader, logger *slog.Logger) (*PaymentJob, error) {
	if plan.PII == schema.Tokenize && tokens == nil {
		return nil, fmt.Errorf("payment job: %w", pii.ErrMissingSalt)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentJob{plan: plan, source: source, tokens: tokens, loader: loader, log: logger}, nil
}

// Name implements Job.
func (j *PaymentJob) Name() string { return "payment_analytics" }

// Run implements Job.
func (j *PaymentJob) Run(ctx context.Context, window etl.TimeWindow) *etl.Result {
	version := j.plan.ExtractPath
	if j.plan.LegacyPayments {
		version = schema.Legacy
	}
	return runJob(ctx, j.Name(), "payment_analytics", j.loader, j.log,
		func(ctx context.Context) iter.Seq2[etl.Record, error] {
			return j.source.FetchPaymentAnalytics(ctx, window, version)
		},
		j.transform,
		nil,
	)
}

func (j *PaymentJob) transform(raw []etl.Record, result *etl.Result) []etl.Record {
	d := dedup.New(j.plan.Dedup)
	unique := d.Batch(raw)
	result.AddSkipped(int64(len(raw) - len(unique)))

	metrics := make([]etl.Record, 0, len(unique))
	for _, record := range unique {
		metric, err := paymentMetric(record, j.plan, j.tokens)
		if err != nil {
			j.log.Warn("dropping payment record", "error", err)
			result.AddFailed(1)
			continue
		}
		metrics = append(metrics, metric)
	}
	return metrics
}

// paymentMetric maps one aggregate payment row to its metric shape. The
// input is sanitized first: tokenization replaces card_number,
// billing_address, and cardholder_name with tokens; masking replaces
// card_number with its display form. Neither path lets the raw card number
// survive into the metric. Pure: the input record is never mutated.
func paymentMetric(record etl.Record, plan schema.Plan, tokens *pii.Tokenizer) (etl.Record, error) {
	var clean etl.Record
	if plan.PII == schema.Tokenize {
		clean = tokens.TokenizePaymentInfo(record)
	} else {
		clean = record.Clone()
		if card := clean.GetString("card_number"); card != "" {
			clean["card_display"] = pii.MaskCard(card)
			delete(clean, "card_number")
		}
	}

	transactions := clean.GetInt("transaction_count")
	successful := clean.GetInt("successful")
	metric := etl.Record{
		"payment_date":           dateString(clean, "payment_date"),
		"payment_method":         clean.GetString("payment_method"),
		"transaction_count":      transactions,
		"successful_count":       successful,
		"failed_count":           clean.GetInt("failed"),
		"success_rate":           Rate(successful, transactions),
		"avg_processing_time_ms": clean.GetFloat("avg_processing_time"),
	}

	if plan.Schema == schema.Legacy {
		metric["total_amount"] = clean.GetFloat("total_amount")
	} else {
		amount, err := decimalString(clean["total_amount"])
		if err != nil {
			return nil, err
		}
		metric["total_amount"] = amount
	}

	for _, key := range []string{"card_token", "card_last_four", "card_display", "billing_token", "cardholder_token"} {
		if clean.Has(key) {
			metric[key] = clean[key]
		}
	}

	return metric, nil
}
