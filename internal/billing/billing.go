// AngelaMos | 2026
// billing.go

package billing

import (
	"context"

	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

// SystemActor is the audit identity of changes pushed by the billing provider.
const SystemActor = "system:billing"

// Session is a started checkout: the provider's id and the redirect URL.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Change is subscription state pushed by the provider. AccountID may be empty
// when only the customer is known.
type Change struct {
	EventID        string
	AccountID      string
	CustomerID     string
	SubscriptionID string
	SessionID      string
	Tier           entitlement.Tier
}

// Reconciler applies a Change through the same tier-change path operators
// use.
type Reconciler interface {
	ReconcileSubscription(ctx context.Context, change Change) error
}
