package config

import (
	"log/slog"
	"os"
	"strings"
)

// FeatureFlags controls the migration toggles of the ETL pipeline. The
// struct is built once at process start and passed by value to the schema
// router and job runners, so flag state is explicit at every call site and
// a test can construct any combination directly.
type FeatureFlags struct {
	// LegacyETL selects the legacy extraction path and the legacy (MD5)
	// dedup fingerprint.
	LegacyETL bool `yaml:"legacy_etl"`
	// V1Schema selects the v1 metric shapes (float currency, narrower
	// field sets).
	V1Schema bool `yaml:"v1_schema"`
	// LegacyPayments selects the old payments source integration.
	LegacyPayments bool `yaml:"legacy_payments"`
	// LegacyPII selects masking instead of tokenization.
	LegacyPII bool `yaml:"legacy_pii"`
}

// ParseBool interprets an environment flag value. Accepted truthy tokens,
// case-insensitive: "true", "1", "yes", "on". Anything else is falsy.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// FlagsFromEnv reads the feature flags from the environment. Unset
// variables fall back to the rollout defaults: legacy ETL, v1 schema, and
// legacy PII remain on until their migrations complete; legacy payments is
// already off.
func FlagsFromEnv() FeatureFlags {
	flags := FeatureFlags{
		LegacyETL:      parseBoolDefault(os.Getenv("ENABLE_LEGACY_ETL"), true),
		V1Schema:       parseBoolDefault(os.Getenv("ENABLE_V1_SCHEMA"), true),
		LegacyPayments: parseBoolDefault(os.Getenv("ENABLE_LEGACY_PAYMENTS"), false),
		LegacyPII:      parseBoolDefault(os.Getenv("ENABLE_LEGACY_PII"), true),
	}

	slog.Debug("feature flags loaded",
		"legacy_etl", flags.LegacyETL,
		"v1_schema", flags.V1Schema,
		"legacy_payments", flags.LegacyPayments,
		"legacy_pii", flags.LegacyPII,
	)

	return flags
}

func parseBoolDefault(value string, def bool) bool {
	if value == "" {
		return def
	}
	return ParseBool(value)
}
