// AngelaMos | 2026
// entity.go

package account

import (
	"time"

	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

// Account mirrors one row of the accounts table. Tier is stored raw and may
// hold legacy or composite values; only the entitlement resolver reads it.
type Account struct {
	ID                   string     `db:"id"`
	Email                string     `db:"email"`
	Name                 string     `db:"name"`
	Tier                 string     `db:"tier"`
	DashboardType        *string    `db:"dashboard_type"`
	QueriesUsed          int        `db:"queries_used"`
	QueriesLimit         int        `db:"queries_limit"`
	LimitOverridden      bool       `db:"limit_overridden"`
	IsAdmin              bool       `db:"is_admin"`
	IsTestUser           bool       `db:"is_test_user"`
	LastActivityAt       *time.Time `db:"last_activity_at"`
	ScheduledDeletionAt  *time.Time `db:"scheduled_deletion_at"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id"`
	PendingCheckoutID    *string    `db:"pending_checkout_id"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

func (a *Account) Record() entitlement.Record {
	return entitlement.Record{
		Email:           a.Email,
		Tier:            a.Tier,
		DashboardType:   deref(a.DashboardType),
		QueriesLimit:    a.QueriesLimit,
		LimitOverridden: a.LimitOverridden,
		IsAdmin:         a.IsAdmin,
		IsTestUser:      a.IsTestUser,
	}
}

// LastSeen is the later of the last recorded activity and account creation.
func (a *Account) LastSeen() time.Time {
	if a.LastActivityAt != nil && a.LastActivityAt.After(a.CreatedAt) {
		return *a.LastActivityAt
	}
	return a.CreatedAt
}

func (a *Account) IsDeletionScheduled() bool {
	return a.ScheduledDeletionAt != nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
