// AngelaMos | 2026
// handler.go

package lifecycle

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/middleware"
)

type DeletionRequestBody struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type Handler struct {
	manager   *Manager
	validator *validator.Validate
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager:   manager,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts the self-service route.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.With(authenticator).Post("/account/deletion-request", h.RequestDeletion)
}

// RegisterAdminRoutes mounts operator routes on an already admin-guarded
// router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/lifecycle/sweep", h.Sweep)
	r.Get("/accounts/{id}/lifecycle", h.State)
	r.Post("/accounts/{id}/deletion", h.Schedule)
	r.Delete("/accounts/{id}/deletion", h.Cancel)
	r.Post("/accounts/{id}/deletion/execute", h.Execute)
	r.Get("/deletion-requests", h.ListRequests)
	r.Post("/deletion-requests/{id}/process", h.ProcessRequest)
}

func (h *Handler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	var body DeletionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(body); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	req, err := h.manager.RequestDeletion(r.Context(), middleware.GetAccountID(r.Context()), body.Reason)
	if err != nil {
		core.HandleServiceError(w, err, "deletion request")
		return
	}

	core.Created(w, req)
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	reports, err := h.manager.Sweep(r.Context())
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, reports)
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, report)
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	acct, err := h.manager.ScheduleDeletion(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, account.ToAccountResponse(acct))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	acct, err := h.manager.CancelDeletion(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, account.ToAccountResponse(acct))
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ExecuteDeletion(r.Context(), middleware.Operator(r), chi.URLParam(r, "id")); err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.NoContent(w)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := RequestStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit")) //nolint:errcheck // zero falls back to default

	requests, err := h.manager.ListDeletionRequests(r.Context(), status, limit)
	if err != nil {
		core.HandleServiceError(w, err, "deletion request")
		return
	}
	if requests == nil {
		requests = []DeletionRequest{}
	}

	core.OK(w, requests)
}

func (h *Handler) ProcessRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.manager.ProcessDeletionRequest(r.Context(), middleware.Operator(r), chi.URLParam(r, "id"))
	if err != nil {
		core.HandleServiceError(w, err, "deletion request")
		return
	}

	core.OK(w, req)
}
