// AngelaMos | 2026
// decision.go

package gate

import (
	"errors"
	"fmt"

	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

type Action string

const (
	ActionChat               Action = "chat"
	ActionDocumentAnalysis   Action = "document_analysis"
	ActionContractAnalysis   Action = "contract_analysis"
	ActionTemplateGeneration Action = "template_generation"
)

var actionFeatures = map[Action]entitlement.Feature{
	ActionChat:               entitlement.FeatureChat,
	ActionDocumentAnalysis:   entitlement.FeatureDocumentAnalysis,
	ActionContractAnalysis:   entitlement.FeatureContractAnalysis,
	ActionTemplateGeneration: entitlement.FeatureTemplateGeneration,
}

func (a Action) Feature() (entitlement.Feature, bool) {
	f, ok := actionFeatures[a]
	return f, ok
}

type Reason string

const (
	ReasonRegisterRequired    Reason = "register_required"
	ReasonQuotaExceeded       Reason = "quota_exceeded"
	ReasonTierUpgradeRequired Reason = "tier_upgrade_required"
)

// Actor is the explicit identity of a gate call. An empty AccountID means
// an anonymous visitor identified only by Fingerprint.
type Actor struct {
	AccountID   string
	Fingerprint string
}

func (a Actor) Anonymous() bool {
	return a.AccountID == ""
}

// Decision is the typed outcome of a check. Denials are results, not errors.
type Decision struct {
	Allowed               bool             `json:"allowed"`
	Action                Action           `json:"action"`
	Reason                Reason           `json:"reason,omitempty"`
	RequiredTier          entitlement.Tier `json:"required_tier,omitempty"`
	Tier                  entitlement.Tier `json:"tier,omitempty"`
	DeclaredTarget        entitlement.Tier `json:"declared_target,omitempty"`
	Used                  int              `json:"used"`
	Limit                 int              `json:"limit"`
	Unbounded             bool             `json:"unbounded"`
	SuppressUpgradePrompt bool             `json:"suppress_upgrade_prompt,omitempty"`
}

func (d Decision) outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

var (
	ErrRegisterRequired    = errors.New("registration required")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrTierUpgradeRequired = errors.New("tier upgrade required")
)

// DeniedError wraps a deny Decision for callers that run the gated action
// through Run and want an error back.
type DeniedError struct {
	Decision Decision
}

func (e *DeniedError) Error() string {
	if e.Decision.RequiredTier != "" {
		return fmt.Sprintf("access denied: %s (requires %s)",
			e.Decision.Reason, e.Decision.RequiredTier)
	}
	return fmt.Sprintf("access denied: %s", e.Decision.Reason)
}

func (e *DeniedError) Is(target error) bool {
	switch e.Decision.Reason {
	case ReasonRegisterRequired:
		return target == ErrRegisterRequired
	case ReasonQuotaExceeded:
		return target == ErrQuotaExceeded
	case ReasonTierUpgradeRequired:
		return target == ErrTierUpgradeRequired
	}
	return false
}
