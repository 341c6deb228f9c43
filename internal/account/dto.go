// AngelaMos | 2026
// dto.go

package account

import (
	"time"

	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

type AccountResponse struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Tier                string     `json:"tier"`
	DashboardType       string     `json:"dashboard_type,omitempty"`
	QueriesUsed         int        `json:"queries_used"`
	QueriesLimit        int        `json:"queries_limit"`
	LimitOverridden     bool       `json:"limit_overridden"`
	IsAdmin             bool       `json:"is_admin"`
	IsTestUser          bool       `json:"is_test_user"`
	LastActivityAt      *time.Time `json:"last_activity_at,omitempty"`
	ScheduledDeletionAt *time.Time `json:"scheduled_deletion_at,omitempty"`
	PendingCheckout     bool       `json:"pending_checkout"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MeResponse pairs the stored record with its freshly resolved entitlement.
type MeResponse struct {
	Account     AccountResponse         `json:"account"`
	Entitlement entitlement.Entitlement `json:"entitlement"`
}

type UpdateMeRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
}

type ListParams struct {
	Page          int    `json:"page"`
	PageSize      int    `json:"page_size"`
	Search        string `json:"search"`
	Tier          string `json:"tier"`
	ScheduledOnly bool   `json:"scheduled_only"`
}

func (p *ListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToAccountResponse(a *Account) AccountResponse {
	return AccountResponse{
		ID:                  a.ID,
		Email:               a.Email,
		Name:                a.Name,
		Tier:                a.Tier,
		DashboardType:       deref(a.DashboardType),
		QueriesUsed:         a.QueriesUsed,
		QueriesLimit:        a.QueriesLimit,
		LimitOverridden:     a.LimitOverridden,
		IsAdmin:             a.IsAdmin,
		IsTestUser:          a.IsTestUser,
		LastActivityAt:      a.LastActivityAt,
		ScheduledDeletionAt: a.ScheduledDeletionAt,
		PendingCheckout:     a.PendingCheckoutID != nil,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func ToAccountResponseList(accounts []Account) []AccountResponse {
	responses := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		responses = append(responses, ToAccountResponse(&a))
	}
	return responses
}
