// AngelaMos | 2026
// handler.go

package billing

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/middleware"
)

const maxWebhookBytes = int64(65536)

type CheckoutRequest struct {
	Tier string `json:"tier" validate:"required,oneof=basis professional lawyer mieter_plus"`
}

type Handler struct {
	service       *Service
	reconciler    Reconciler
	webhookSecret string
	validator     *validator.Validate
	logger        *slog.Logger
}

func NewHandler(
	service *Service,
	reconciler Reconciler,
	webhookSecret string,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:       service,
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
		validator:     validator.New(validator.WithRequiredStructEnabled()),
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/billing", func(r chi.Router) {
		r.With(authenticator).Post("/checkout", h.Checkout)
		r.Post("/webhook", h.Webhook)
	})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}

	session, err := h.service.StartCheckoutFor(r.Context(), middleware.GetAccountID(r.Context()), tier)
	if err != nil {
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, session)
}

// Webhook is unauthenticated; the Stripe signature is the only proof of
// origin.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		core.BadRequest(w, "invalid payload")
		return
	}

	if h.webhookSecret == "" {
		h.logger.Error("stripe webhook secret missing")
		core.JSONError(w, core.NewAppError("WEBHOOK_DISABLED", "webhook not configured",
			http.StatusServiceUnavailable))
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		r.Header.Get("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.logger.Warn("stripe webhook signature rejected", "error", err)
		core.BadRequest(w, "signature verification failed")
		return
	}

	change, ok, err := changeFromEvent(event)
	if err != nil {
		core.BadRequest(w, err.Error())
		return
	}
	if !ok {
		core.OK(w, map[string]string{"status": "ignored"})
		return
	}

	if err := h.reconciler.ReconcileSubscription(r.Context(), change); err != nil {
		h.logger.Error("stripe reconciliation failed",
			"event_id", event.ID,
			"type", event.Type,
			"error", err,
		)
		core.HandleServiceError(w, err, "account")
		return
	}

	core.OK(w, map[string]string{"status": "ok"})
}

// changeFromEvent maps the two subscription events the core cares about.
// Other event types are acknowledged and ignored.
func changeFromEvent(event stripe.Event) (Change, bool, error) {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return Change{}, false, fmt.Errorf("invalid session payload")
		}

		tier, err := entitlement.ParseTier(sess.Metadata["tier"])
		if err != nil {
			return Change{}, false, fmt.Errorf("session has no valid tier")
		}

		change := Change{
			EventID:   event.ID,
			AccountID: sess.ClientReferenceID,
			SessionID: sess.ID,
			Tier:      tier,
		}
		if change.AccountID == "" {
			change.AccountID = sess.Metadata["account_id"]
		}
		if sess.Customer != nil {
			change.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			change.SubscriptionID = sess.Subscription.ID
		}
		if change.AccountID == "" && change.CustomerID == "" {
			return Change{}, false, fmt.Errorf("session has no account reference")
		}
		return change, true, nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return Change{}, false, fmt.Errorf("invalid subscription payload")
		}
		if sub.Customer == nil || sub.Customer.ID == "" {
			return Change{}, false, fmt.Errorf("subscription has no customer")
		}
		return Change{
			EventID:        event.ID,
			CustomerID:     sub.Customer.ID,
			SubscriptionID: sub.ID,
			Tier:           entitlement.TierFree,
		}, true, nil
	}

	return Change{}, false, nil
}
