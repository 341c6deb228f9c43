// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
	stats     *statsCollector
}

// HandlerConfig wires the console to the stores it reports on. Every probe
// is optional; a nil one leaves its section out of the report.
type HandlerConfig struct {
	Service    *Service
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	RedisPing  func(ctx context.Context) error
	DBPing     func(ctx context.Context) error
	Outbox     OutboxCounter
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		service:   cfg.Service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		stats:     newStatsCollector(cfg),
	}
}

// RegisterRoutes mounts the operator console. mounts attach routes owned by
// other packages under the same admin guard.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
	mounts ...func(chi.Router),
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetStats)
		r.Get("/stats/{section}", h.GetStatsSection)

		r.Get("/accounts", h.ListAccounts)
		r.Post("/accounts", h.ProvisionAccount)
		r.Get("/accounts/{id}", h.GetAccount)
		r.Put("/accounts/{id}/tier", h.ChangeTier)
		r.Put("/accounts/{id}/queries", h.SetQueryCount)
		r.Post("/accounts/{id}/queries/reset", h.ResetQueryCount)
		r.Put("/accounts/{id}/limit", h.SetQueryLimit)
		r.Delete("/accounts/{id}/limit", h.ClearQueryLimit)
		r.Put("/accounts/{id}/admin", h.GrantAdmin)
		r.Delete("/accounts/{id}/admin", h.RevokeAdmin)
		r.Delete("/anonymous/{fingerprint}", h.ClearAnonymous)

		for _, mount := range mounts {
			mount(r)
		}
	})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := account.ListParams{
		Search:        q.Get("search"),
		Tier:          q.Get("tier"),
		ScheduledOnly: q.Get("scheduled") == "true",
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))           //nolint:errcheck // zero falls back to defaults
	params.PageSize, _ = strconv.Atoi(q.Get("page_size")) //nolint:errcheck // zero falls back to defaults
	params.Normalize()

	accounts, total, err := h.service.ListAccounts(r.Context(), middleware.Operator(r), params)
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, AccountListResponse{
		Items:    account.ToAccountResponseList(accounts),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetAccount(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, detail)
}

func (h *Handler) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.ProvisionAccount(r.Context(), middleware.Operator(r), req)
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.Created(w, result)
}

func (h *Handler) ChangeTier(w http.ResponseWriter, r *http.Request) {
	var req ChangeTierRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.service.ChangeTier(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"), req.Tier)
	h.writeAccount(w, acct, err)
}

func (h *Handler) SetQueryCount(w http.ResponseWriter, r *http.Request) {
	var req SetQueriesRequest
	if !h.decode(w, r, &req) {
		return
	}

	usage, err := h.service.SetQueryCount(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"), *req.Value)
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, usage)
}

func (h *Handler) ResetQueryCount(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.ResetQueryCount(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, usage)
}

func (h *Handler) SetQueryLimit(w http.ResponseWriter, r *http.Request) {
	var req SetLimitRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.service.SetQueryLimit(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"), *req.Limit)
	h.writeAccount(w, acct, err)
}

func (h *Handler) ClearQueryLimit(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.ClearQueryLimit(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	h.writeAccount(w, acct, err)
}

func (h *Handler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.GrantAdmin(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	h.writeAccount(w, acct, err)
}

func (h *Handler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	acct, err := h.service.RevokeAdmin(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	h.writeAccount(w, acct, err)
}

func (h *Handler) ClearAnonymous(w http.ResponseWriter, r *http.Request) {
	err := h.service.ClearAnonymous(r.Context(), middleware.Operator(r), chi.URLParam(r, "fingerprint"))
	if err != nil {
		core.HandleServiceError(w, err, "anonymous session")
		return
	}

	core.NoContent(w)
}

func (h *Handler) writeAccount(w http.ResponseWriter, acct *account.Account, err error) {
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, account.ToAccountResponse(acct))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}
