// AngelaMos | 2026
// resolver_test.go

package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver() *Resolver {
	return NewResolver(NewCatalog(), []string{" Owner@Example.com "})
}

func TestResolveNormalisesTiers(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name          string
		tier          string
		dashboardType string
		wantTier      Tier
		wantTarget    Tier
		wantLimit     int
		wantUnbounded bool
	}{
		{"free", "free", "", TierFree, "", 5, false},
		{"empty defaults to free", "", "", TierFree, "", 5, false},
		{"basis", "basis", "", TierBasis, "", 50, false},
		{"professional", "professional", "", TierProfessional, "", 200, false},
		{"lawyer unbounded", "lawyer", "", TierLawyer, "", 0, true},
		{"legacy mieter_plus", "mieter_plus", "", TierBasis, "", 50, false},
		{"legacy mixed case", " Mieter_Plus ", "", TierBasis, "", 50, false},
		{"free_basis", "free_basis", "", TierFree, TierBasis, 5, false},
		{"free_professional", "free_professional", "", TierFree, TierProfessional, 5, false},
		{"free_lawyer", "free_lawyer", "", TierFree, TierLawyer, 5, false},
		{"free_mieter_plus", "free_mieter_plus", "", TierFree, TierBasis, 5, false},
		{"free with dashboard hint", "free", "professional", TierFree, TierProfessional, 5, false},
		{"dashboard hint ignored on paid", "basis", "lawyer", TierBasis, "", 50, false},
		{"suffix wins over dashboard", "free_lawyer", "basis", TierFree, TierLawyer, 5, false},
		{"unknown dashboard hint", "free", "gold", TierFree, "", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ent, err := r.Resolve(Record{Tier: tt.tier, DashboardType: tt.dashboardType})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTier, ent.Tier)
			assert.Equal(t, tt.wantTarget, ent.DeclaredTarget)
			assert.Equal(t, tt.wantLimit, ent.QueryLimit)
			assert.Equal(t, tt.wantUnbounded, ent.Unbounded)
		})
	}
}

func TestResolveIsPure(t *testing.T) {
	r := newTestResolver()
	rec := Record{Email: "a@b.c", Tier: "free_professional", QueriesLimit: 7}

	first, err1 := r.Resolve(rec)
	second, err2 := r.Resolve(rec)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestResolveUnknownTierDegradesToFree(t *testing.T) {
	r := newTestResolver()

	for _, raw := range []string{"gold", "free_gold", "freeloader"} {
		t.Run(raw, func(t *testing.T) {
			ent, err := r.Resolve(Record{Tier: raw})

			var unknown *UnknownTierError
			require.ErrorAs(t, err, &unknown)
			assert.Equal(t, raw, unknown.Raw)
			assert.Equal(t, TierFree, ent.Tier)
			assert.Equal(t, 5, ent.QueryLimit)
			assert.True(t, ent.HasFeature(FeatureChat))
		})
	}
}

func TestResolveLimitOverride(t *testing.T) {
	r := newTestResolver()

	ent, err := r.Resolve(Record{Tier: "basis", QueriesLimit: 75, LimitOverridden: true})
	require.NoError(t, err)
	assert.Equal(t, 75, ent.QueryLimit)
	assert.True(t, ent.LimitOverridden)
	assert.True(t, ent.HasFeature(FeatureDocumentAnalysis))
	assert.False(t, ent.HasFeature(FeatureContractAnalysis))

	ent, err = r.Resolve(Record{Tier: "lawyer", QueriesLimit: 10, LimitOverridden: true})
	require.NoError(t, err)
	assert.False(t, ent.Unbounded)
	assert.Equal(t, 10, ent.QueryLimit)

	ent, err = r.Resolve(Record{Tier: "basis", QueriesLimit: 999})
	require.NoError(t, err)
	assert.Equal(t, 50, ent.QueryLimit, "stored limit without override follows catalog")
}

func TestResolveAdmin(t *testing.T) {
	r := newTestResolver()

	ent, _ := r.Resolve(Record{Email: "owner@example.com", Tier: "free"})
	assert.True(t, ent.Admin)
	assert.True(t, ent.ProtectedAdmin)

	ent, _ = r.Resolve(Record{Email: "staff@example.com", Tier: "free", IsAdmin: true})
	assert.True(t, ent.Admin)
	assert.False(t, ent.ProtectedAdmin)

	ent, _ = r.Resolve(Record{Email: "user@example.com", Tier: "free"})
	assert.False(t, ent.Admin)

	assert.True(t, r.IsProtectedAdmin("OWNER@example.com"))
	assert.False(t, r.IsProtectedAdmin(""))
}

func TestResolveTestUser(t *testing.T) {
	r := newTestResolver()

	ent, err := r.Resolve(Record{Tier: "professional", IsTestUser: true})
	require.NoError(t, err)
	assert.True(t, ent.TestUser)
	assert.Equal(t, TierProfessional, ent.Tier)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("mieter_plus")
	require.NoError(t, err)
	assert.Equal(t, TierBasis, tier)

	tier, err = ParseTier("Lawyer")
	require.NoError(t, err)
	assert.Equal(t, TierLawyer, tier)

	_, err = ParseTier("free_basis")
	var unknown *UnknownTierError
	assert.ErrorAs(t, err, &unknown)
}

func TestFreeFamily(t *testing.T) {
	assert.True(t, IsFreeFamily("free"))
	assert.True(t, IsFreeFamily("free_lawyer"))
	assert.False(t, IsFreeFamily("basis"))
	assert.False(t, IsFreeFamily("free_gold"))

	assert.Equal(t, "free_professional", FreePlaceholder(TierProfessional))
	assert.Equal(t, "free", FreePlaceholder(TierFree))
}
