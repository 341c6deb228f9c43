// AngelaMos | 2026
// handler.go

package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/middleware"
	"github.com/carterperez-dev/legalquota/internal/quota"
)

const FingerprintHeader = "X-Client-Fingerprint"

type UsageReader interface {
	Get(ctx context.Context, accountID string) (quota.Usage, error)
}

type Handler struct {
	gate      *Gate
	usage     UsageReader
	validator *validator.Validate
}

func NewHandler(gate *Gate, usage UsageReader) *Handler {
	return &Handler{
		gate:      gate,
		usage:     usage,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=chat document_analysis contract_analysis template_generation"`
}

type ChargeResponse struct {
	Used     int  `json:"used"`
	Recorded bool `json:"recorded"`
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, optionalAuth func(http.Handler) http.Handler,
) {
	r.Route("/gate", func(r chi.Router) {
		r.Use(optionalAuth)

		r.Post("/check", h.Check)
		r.Post("/charge", h.Charge)
	})

	r.With(authenticator).Get("/quota", h.Usage)
}

// ActorFromRequest builds the explicit actor from what the middleware
// extracted and the fingerprint header.
func ActorFromRequest(r *http.Request) Actor {
	return Actor{
		AccountID:   middleware.GetAccountID(r.Context()),
		Fingerprint: r.Header.Get(FingerprintHeader),
	}
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	decision, err := h.gate.Check(r.Context(), ActorFromRequest(r), Action(req.Action))
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, decision)
}

// Charge is called by the action backend once the gated action succeeded.
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.decode(w, r); !ok {
		return
	}

	actor := ActorFromRequest(r)
	if actor.Anonymous() && actor.Fingerprint == "" {
		core.BadRequest(w, "fingerprint required for anonymous charge")
		return
	}

	used, err := h.gate.Charge(r.Context(), actor)
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, ChargeResponse{Used: used, Recorded: used > 0})
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.usage.Get(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, usage)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (ActionRequest, bool) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return req, false
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return req, false
	}

	return req, true
}

// WriteDenied renders a *DeniedError as 402 with the decision attached.
func WriteDenied(w http.ResponseWriter, err error) bool {
	var denied *DeniedError
	if !errors.As(err, &denied) {
		return false
	}

	core.JSONError(w, core.NewAppError(
		"ACCESS_DENIED",
		denied.Error(),
		http.StatusPaymentRequired,
	).WithDetails(map[string]any{
		"reason":        denied.Decision.Reason,
		"required_tier": denied.Decision.RequiredTier,
		"used":          denied.Decision.Used,
		"limit":         denied.Decision.Limit,
	}))
	return true
}
