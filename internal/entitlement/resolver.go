// AngelaMos | 2026
// resolver.go

package entitlement

import (
	"fmt"
	"slices"
	"strings"
)

// Record is the raw, possibly legacy-shaped account data the resolver
// normalises. Callers build it from whatever the record store returned.
type Record struct {
	Email           string
	Tier            string
	DashboardType   string
	QueriesLimit    int
	LimitOverridden bool
	IsAdmin         bool
	IsTestUser      bool
}

// Entitlement is derived on every request and never persisted.
type Entitlement struct {
	Tier            Tier      `json:"tier"`
	DeclaredTarget  Tier      `json:"declared_target,omitempty"`
	QueryLimit      int       `json:"query_limit"`
	Unbounded       bool      `json:"unbounded"`
	Features        []Feature `json:"features"`
	Admin           bool      `json:"admin"`
	ProtectedAdmin  bool      `json:"protected_admin"`
	TestUser        bool      `json:"test_user"`
	LimitOverridden bool      `json:"limit_overridden"`
}

func (e Entitlement) HasFeature(f Feature) bool {
	return slices.Contains(e.Features, f)
}

// UnknownTierError is recoverable: Resolve still returns free-tier limits.
type UnknownTierError struct {
	Raw string
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown tier %q", e.Raw)
}

type Resolver struct {
	catalog   *Catalog
	allowlist map[string]struct{}
}

func NewResolver(catalog *Catalog, adminAllowlist []string) *Resolver {
	allow := make(map[string]struct{}, len(adminAllowlist))
	for _, id := range adminAllowlist {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			allow[id] = struct{}{}
		}
	}

	return &Resolver{catalog: catalog, allowlist: allow}
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// IsProtectedAdmin reports fixed allow-list membership.
func (r *Resolver) IsProtectedAdmin(email string) bool {
	_, ok := r.allowlist[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Resolve is pure: the same record always yields the same entitlement. On an
// unknown tier it returns free-tier limits together with *UnknownTierError.
func (r *Resolver) Resolve(rec Record) (Entitlement, error) {
	effective, declared, normErr := normalize(rec.Tier, rec.DashboardType)

	spec, ok := r.catalog.Lookup(effective)
	if !ok {
		spec = r.catalog.Free()
	}

	ent := Entitlement{
		Tier:           spec.Tier,
		DeclaredTarget: declared,
		QueryLimit:     spec.QueryLimit,
		Unbounded:      spec.Unbounded,
		Features:       slices.Clone(spec.Features),
		ProtectedAdmin: r.IsProtectedAdmin(rec.Email),
		TestUser:       rec.IsTestUser,
	}
	ent.Admin = rec.IsAdmin || ent.ProtectedAdmin

	if rec.LimitOverridden {
		ent.QueryLimit = max(rec.QueriesLimit, 0)
		ent.Unbounded = false
		ent.LimitOverridden = true
	}

	return ent, normErr
}

// ParseTier accepts a canonical tier name or the mieter_plus synonym.
func ParseTier(raw string) (Tier, error) {
	tier, ok := canonical(raw)
	if !ok {
		return "", &UnknownTierError{Raw: raw}
	}
	return tier, nil
}

// IsFreeFamily reports whether a raw stored tier bills on the free budget.
func IsFreeFamily(raw string) bool {
	effective, _, err := normalize(raw, "")
	return err == nil && effective == TierFree
}

// FreePlaceholder is the composite tier stored while an upgrade to target
// awaits billing completion.
func FreePlaceholder(target Tier) string {
	if target == TierFree || target == "" {
		return string(TierFree)
	}
	return freePrefix + "_" + string(target)
}

func normalize(raw, dashboardType string) (Tier, Tier, error) {
	value := strings.ToLower(strings.TrimSpace(raw))

	if value == "" {
		return TierFree, upgradeTarget(dashboardType), nil
	}

	if value == freePrefix {
		return TierFree, upgradeTarget(dashboardType), nil
	}

	if suffix, found := strings.CutPrefix(value, freePrefix+"_"); found {
		target := upgradeTarget(suffix)
		if target == "" {
			return TierFree, "", &UnknownTierError{Raw: raw}
		}
		return TierFree, target, nil
	}

	tier, ok := canonical(value)
	if !ok {
		return TierFree, "", &UnknownTierError{Raw: raw}
	}
	return tier, "", nil
}

func canonical(raw string) (Tier, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == LegacyMieterPlus {
		return TierBasis, true
	}

	switch Tier(value) {
	case TierFree, TierBasis, TierProfessional, TierLawyer:
		return Tier(value), true
	}
	return "", false
}

func upgradeTarget(raw string) Tier {
	tier, ok := canonical(raw)
	if !ok || !IsPaid(tier) {
		return ""
	}
	return tier
}
