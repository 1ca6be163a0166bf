package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/config"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/fingerprint"
	"github.com/tm-acme-shop/acme-shop-analytics-etl/internal/schema"
)

func TestPlanFor_AllCurrent(t *testing.T) {
	plan := schema.PlanFor(config.FeatureFlags{})

	require.Equal(t, schema.Current, plan.Schema)
	require.Equal(t, schema.Current, plan.ExtractPath)
	require.Equal(t, fingerprint.Current, plan.Dedup)
	require.Equal(t, schema.Tokenize, plan.PII)
}

func TestPlanFor_AllLegacy(t *testing.T) {
	plan := schema.PlanFor(config.FeatureFlags{
		LegacyETL: true,
		V1Schema:  true,
		LegacyPII: true,
	})

	require.Equal(t, schema.Legacy, plan.Schema)
	require.Equal(t, schema.Legacy, plan.ExtractPath)
	require.Equal(t, fingerprint.Legacy, plan.Dedup)
	require.Equal(t, schema.Mask, plan.PII)
}

// The schema flag and the legacy-ETL flag are orthogonal: the dedup
// algorithm follows LegacyETL regardless of the schema choice.
func TestPlanFor_FlagsAreOrthogonal(t *testing.T) {
	plan := schema.PlanFor(config.FeatureFlags{V1Schema: true})
	require.Equal(t, schema.Legacy, plan.Schema)
	require.Equal(t, schema.Current, plan.ExtractPath)
	require.Equal(t, fingerprint.Current, plan.Dedup)

	plan = schema.PlanFor(config.FeatureFlags{LegacyETL: true})
	require.Equal(t, schema.Current, plan.Schema)
	require.Equal(t, schema.Legacy, plan.ExtractPath)
	require.Equal(t, fingerprint.Legacy, plan.Dedup)
}

func TestPlanFor_LegacyPayments(t *testing.T) {
	require.True(t, schema.PlanFor(config.FeatureFlags{LegacyPayments: true}).LegacyPayments)
	require.False(t, schema.PlanFor(config.FeatureFlags{}).LegacyPayments)
}
