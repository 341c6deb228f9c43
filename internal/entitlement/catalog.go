// AngelaMos | 2026
// catalog.go

package entitlement

import (
	"slices"
)

type Tier string

const (
	TierFree         Tier = "free"
	TierBasis        Tier = "basis"
	TierProfessional Tier = "professional"
	TierLawyer       Tier = "lawyer"
)

// Legacy and composite raw tier strings still found on older account records.
const (
	LegacyMieterPlus = "mieter_plus"
	freePrefix       = "free"
)

type Feature string

const (
	FeatureChat               Feature = "chat"
	FeatureDocumentAnalysis   Feature = "document_analysis"
	FeatureContractAnalysis   Feature = "contract_analysis"
	FeatureTemplateLibrary    Feature = "template_library"
	FeatureTemplateGeneration Feature = "template_generation"
	FeatureClientMandates     Feature = "client_mandates"
	FeaturePrioritySupport    Feature = "priority_support"
)

// TierSpec is one row of the catalog.
type TierSpec struct {
	Tier       Tier
	QueryLimit int
	Unbounded  bool
	Features   []Feature
}

func (s TierSpec) HasFeature(f Feature) bool {
	return slices.Contains(s.Features, f)
}

var freeFeatures = []Feature{
	FeatureChat,
}

var basisFeatures = withFeatures(freeFeatures,
	FeatureDocumentAnalysis,
	FeatureTemplateLibrary,
)

var professionalFeatures = withFeatures(basisFeatures,
	FeatureContractAnalysis,
	FeatureTemplateGeneration,
)

var lawyerFeatures = withFeatures(professionalFeatures,
	FeatureClientMandates,
	FeaturePrioritySupport,
)

func withFeatures(base []Feature, extra ...Feature) []Feature {
	out := make([]Feature, len(base), len(base)+len(extra))
	copy(out, base)
	return append(out, extra...)
}

// tierOrder is ascending; upgrade suggestions walk it left to right.
var tierOrder = []Tier{TierFree, TierBasis, TierProfessional, TierLawyer}

var defaultCatalog = map[Tier]TierSpec{
	TierFree:         {Tier: TierFree, QueryLimit: 5, Features: freeFeatures},
	TierBasis:        {Tier: TierBasis, QueryLimit: 50, Features: basisFeatures},
	TierProfessional: {Tier: TierProfessional, QueryLimit: 200, Features: professionalFeatures},
	TierLawyer:       {Tier: TierLawyer, Unbounded: true, Features: lawyerFeatures},
}

// Catalog is the static tier table. It is immutable after construction and
// safe for concurrent use.
type Catalog struct {
	specs map[Tier]TierSpec
}

func NewCatalog() *Catalog {
	specs := make(map[Tier]TierSpec, len(defaultCatalog))
	for tier, spec := range defaultCatalog {
		spec.Features = slices.Clone(spec.Features)
		specs[tier] = spec
	}
	return &Catalog{specs: specs}
}

func (c *Catalog) Lookup(tier Tier) (TierSpec, bool) {
	spec, ok := c.specs[tier]
	spec.Features = slices.Clone(spec.Features)
	return spec, ok
}

// Free is the safe fallback row.
func (c *Catalog) Free() TierSpec {
	spec, _ := c.Lookup(TierFree)
	return spec
}

func (c *Catalog) IsUnbounded(tier Tier) bool {
	return c.specs[tier].Unbounded
}

// LimitFor returns the catalog query limit to persist on an account. The
// unbounded tier stores 0 because its limit is never compared.
func (c *Catalog) LimitFor(tier Tier) int {
	spec, ok := c.specs[tier]
	if !ok || spec.Unbounded {
		return 0
	}
	return spec.QueryLimit
}

// MinimalTierFor returns the lowest tier whose feature set includes f.
func (c *Catalog) MinimalTierFor(f Feature) (Tier, bool) {
	for _, tier := range tierOrder {
		if c.specs[tier].HasFeature(f) {
			return tier, true
		}
	}
	return "", false
}

// NextTier returns the lowest tier with a strictly larger budget than tier.
func (c *Catalog) NextTier(tier Tier) (Tier, bool) {
	current, ok := c.specs[tier]
	if !ok {
		current = c.Free()
	}
	if current.Unbounded {
		return "", false
	}

	for _, candidate := range tierOrder {
		spec := c.specs[candidate]
		if spec.Unbounded || spec.QueryLimit > current.QueryLimit {
			return candidate, true
		}
	}
	return "", false
}

// TierAdmitting returns the lowest tier whose catalog budget still has room
// after used queries. The unbounded tier always does.
func (c *Catalog) TierAdmitting(used int) Tier {
	for _, tier := range tierOrder {
		spec := c.specs[tier]
		if spec.Unbounded || spec.QueryLimit > used {
			return tier
		}
	}
	return tierOrder[len(tierOrder)-1]
}

func Rank(tier Tier) int {
	return slices.Index(tierOrder, tier)
}

// Higher returns whichever tier ranks above the other.
func Higher(a, b Tier) Tier {
	if Rank(b) > Rank(a) {
		return b
	}
	return a
}

func IsPaid(tier Tier) bool {
	return tier == TierBasis || tier == TierProfessional || tier == TierLawyer
}

func Tiers() []Tier {
	return slices.Clone(tierOrder)
}
