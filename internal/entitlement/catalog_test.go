// AngelaMos | 2026
// catalog_test.go

package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLookup(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		tier      Tier
		limit     int
		unbounded bool
	}{
		{TierFree, 5, false},
		{TierBasis, 50, false},
		{TierProfessional, 200, false},
		{TierLawyer, 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			spec, ok := c.Lookup(tt.tier)
			require.True(t, ok)
			assert.Equal(t, tt.limit, spec.QueryLimit)
			assert.Equal(t, tt.unbounded, spec.Unbounded)
			assert.Equal(t, tt.unbounded, c.IsUnbounded(tt.tier))
		})
	}

	_, ok := c.Lookup("gold")
	assert.False(t, ok)
}

func TestCatalogFeaturesAreCumulative(t *testing.T) {
	c := NewCatalog()

	tiers := Tiers()
	for i := 1; i < len(tiers); i++ {
		lower, _ := c.Lookup(tiers[i-1])
		higher, _ := c.Lookup(tiers[i])
		for _, f := range lower.Features {
			assert.True(t, higher.HasFeature(f),
				"%s should include %s from %s", higher.Tier, f, lower.Tier)
		}
	}
}

func TestCatalogIsolatedFromCallers(t *testing.T) {
	c := NewCatalog()

	spec, _ := c.Lookup(TierFree)
	spec.Features[0] = FeaturePrioritySupport

	again, _ := c.Lookup(TierFree)
	assert.Equal(t, FeatureChat, again.Features[0])
	assert.Equal(t, FeatureChat, freeFeatures[0])
}

func TestMinimalTierFor(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		feature Feature
		want    Tier
	}{
		{FeatureChat, TierFree},
		{FeatureDocumentAnalysis, TierBasis},
		{FeatureTemplateLibrary, TierBasis},
		{FeatureContractAnalysis, TierProfessional},
		{FeatureTemplateGeneration, TierProfessional},
		{FeatureClientMandates, TierLawyer},
	}

	for _, tt := range tests {
		t.Run(string(tt.feature), func(t *testing.T) {
			got, ok := c.MinimalTierFor(tt.feature)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := c.MinimalTierFor("teleport")
	assert.False(t, ok)
}

func TestNextTier(t *testing.T) {
	c := NewCatalog()

	next, ok := c.NextTier(TierFree)
	require.True(t, ok)
	assert.Equal(t, TierBasis, next)

	next, ok = c.NextTier(TierBasis)
	require.True(t, ok)
	assert.Equal(t, TierProfessional, next)

	next, ok = c.NextTier(TierProfessional)
	require.True(t, ok)
	assert.Equal(t, TierLawyer, next)

	_, ok = c.NextTier(TierLawyer)
	assert.False(t, ok)
}

func TestTierAdmitting(t *testing.T) {
	c := NewCatalog()

	assert.Equal(t, TierFree, c.TierAdmitting(4))
	assert.Equal(t, TierBasis, c.TierAdmitting(5))
	assert.Equal(t, TierProfessional, c.TierAdmitting(60))
	assert.Equal(t, TierLawyer, c.TierAdmitting(200))
}

func TestLimitFor(t *testing.T) {
	c := NewCatalog()

	assert.Equal(t, 5, c.LimitFor(TierFree))
	assert.Equal(t, 50, c.LimitFor(TierBasis))
	assert.Equal(t, 0, c.LimitFor(TierLawyer))
	assert.Equal(t, 0, c.LimitFor("gold"))
}

func TestHigher(t *testing.T) {
	assert.Equal(t, TierProfessional, Higher(TierBasis, TierProfessional))
	assert.Equal(t, TierLawyer, Higher(TierLawyer, TierFree))
	assert.Equal(t, TierBasis, Higher(TierBasis, ""))
}
