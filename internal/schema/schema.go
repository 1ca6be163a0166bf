// Package schema decides, once per job invocation, which of the two
// competing output schemas and processing paths a run uses.
//
// The decision is a pure function of the feature flags: no mid-run
// transition, no ambient state. Everything downstream switches on the
// resulting Plan instead of re-reading flags, so the legacy/current split
// lives in exactly one place.
package schema

import (
	"log/slog"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/config"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/fingerprint"
)

// Version tags one of the two mutually exclusive metric shapes.
type Version int

const (
	// Legacy is the v1 shape: float currency, masked PII, narrower fields.
	Legacy Version = iota
	// Current is the v2 shape: fixed-point decimal strings, tokenized PII,
	// richer derived fields.
	Current
)

// String returns the version name for logging.
func (v Version) String() string {
	if v == Legacy {
		return "v1"
	}
	return "v2"
}

// PIIMode selects how sensitive fields are protected.
type PIIMode int

const (
	// Mask retains partial cleartext (legacy path).
	Mask PIIMode = iota
	// Tokenize produces opaque one-way tokens.
	Tokenize
)

// String returns the mode name for logging.
func (m PIIMode) String() string {
	if m == Mask {
		return "mask"
	}
	return "tokenize"
}

// Plan fixes every migration decision for one job invocation. The four
// toggles are deliberately decoupled: the dedup algorithm follows the
// legacy-ETL flag, not the schema flag, so all flag combinations are
// reachable and must transform without error.
type Plan struct {
	// Schema selects the metric record shape.
	Schema Version
	// ExtractPath selects which extraction queries run.
	ExtractPath Version
	// Dedup selects the fingerprint algorithm for the run's deduplicator.
	Dedup fingerprint.Algorithm
	// PII selects masking or tokenization for sensitive fields.
	PII PIIMode
	// LegacyPayments selects the old payments source integration.
	LegacyPayments bool
}

// PlanFor derives the run plan from the feature flags.
func PlanFor(flags config.FeatureFlags) Plan {
	plan := Plan{
		Schema:         Current,
		ExtractPath:    Current,
		Dedup:          fingerprint.Current,
		PII:            Tokenize,
		LegacyPayments: flags.LegacyPayments,
	}

	if flags.V1Schema {
		plan.Schema = Legacy
	}
	if flags.LegacyETL {
		plan.ExtractPath = Legacy
		plan.Dedup = fingerprint.Legacy
	}
	if flags.LegacyPII {
		plan.PII = Mask
	}

	return plan
}

// LogValue implements slog.LogValuer so runs log their plan compactly.
func (p Plan) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("schema", p.Schema.String()),
		slog.String("extract_path", p.ExtractPath.String()),
		slog.String("dedup", p.Dedup.String()),
		slog.String("pii", p.PII.String()),
	)
}
