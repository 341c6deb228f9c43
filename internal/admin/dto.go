// AngelaMos | 2026
// dto.go

package admin

import (
	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

type ChangeTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free basis professional lawyer mieter_plus"`
}

type SetQueriesRequest struct {
	Value *int `json:"value" validate:"required,min=0"`
}

type SetLimitRequest struct {
	Limit *int `json:"limit" validate:"required,min=0"`
}

type ProvisionRequest struct {
	Email  string `json:"email"  validate:"required,email,max=254"`
	Name   string `json:"name"   validate:"max=100"`
	Tier   string `json:"tier"   validate:"required,oneof=free basis professional lawyer mieter_plus"`
	Comped bool   `json:"comped"`
}

type ProvisionResult struct {
	Account     account.AccountResponse `json:"account"`
	CheckoutURL string                  `json:"checkout_url,omitempty"`
}

type AccountDetail struct {
	Account     account.AccountResponse `json:"account"`
	Entitlement entitlement.Entitlement `json:"entitlement"`
}

type AccountListResponse struct {
	Items    []account.AccountResponse `json:"items"`
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
}
