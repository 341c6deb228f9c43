// AngelaMos | 2026
// billing_test.go

package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/account/accounttest"
	"github.com/carterperez-dev/legalquota/internal/config"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

const testSecret = "whsec_test_legalquota"

type fakeProvider struct {
	customers int
	checkouts []*stripe.CheckoutSessionParams
	voided    []string
	err       error
}

func (f *fakeProvider) CreateCustomer(context.Context, string, string) (string, error) {
	f.customers++
	return "cus_123", f.err
}

func (f *fakeProvider) CreateCheckout(_ context.Context, params *stripe.CheckoutSessionParams) (Session, error) {
	if f.err != nil {
		return Session{}, f.err
	}
	f.checkouts = append(f.checkouts, params)
	return Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (f *fakeProvider) VoidInvoice(_ context.Context, id string) error {
	f.voided = append(f.voided, id)
	return f.err
}

type recordingReconciler struct {
	changes []Change
}

func (r *recordingReconciler) ReconcileSubscription(_ context.Context, c Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func newTestService(t *testing.T, api provider) (*Service, *accounttest.Repository) {
	t.Helper()

	repo := accounttest.NewRepository()
	repo.Put(account.Account{ID: "acct-1", Email: "a@example.com", Tier: "free"})

	resolver := entitlement.NewResolver(entitlement.NewCatalog(), nil)
	accounts := account.NewService(repo, resolver, time.Second, nil)

	cfg := config.StripeConfig{
		FrontendURL: "https://app.example.com/",
		PriceIDs:    map[string]string{"basis": "price_basis", "professional": "price_pro"},
	}
	return newService(api, cfg, accounts, time.Second, nil), repo
}

func TestStartCheckoutRecordsPendingSession(t *testing.T) {
	api := &fakeProvider{}
	svc, repo := newTestService(t, api)

	session, err := svc.StartCheckoutFor(context.Background(), "acct-1", entitlement.TierProfessional)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)

	require.Len(t, api.checkouts, 1)
	params := api.checkouts[0]
	assert.Equal(t, "price_pro", *params.LineItems[0].Price)
	assert.Equal(t, "acct-1", *params.ClientReferenceID)
	assert.Equal(t, "professional", params.Metadata["tier"])
	assert.Equal(t, "https://app.example.com/billing/success", *params.SuccessURL)

	stored, _ := repo.Snapshot("acct-1")
	assert.Equal(t, "free", stored.Tier, "tier changes only on confirmation")
	require.NotNil(t, stored.PendingCheckoutID)
	assert.Equal(t, "cs_test_1", *stored.PendingCheckoutID)
	require.NotNil(t, stored.StripeCustomerID)

	_, err = svc.StartCheckoutFor(context.Background(), "acct-1", entitlement.TierBasis)
	require.NoError(t, err)
	assert.Equal(t, 1, api.customers, "customer is reused")
}

func TestStartCheckoutRejects(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})

	_, err := svc.StartCheckoutFor(context.Background(), "acct-1", entitlement.TierFree)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = svc.StartCheckoutFor(context.Background(), "acct-1", entitlement.TierLawyer)
	assert.ErrorIs(t, err, core.ErrUpstreamFailure, "no price configured")

	_, err = svc.StartCheckoutFor(context.Background(), "", entitlement.TierBasis)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	failing, _ := newTestService(t, &fakeProvider{err: errors.New("card_declined")})
	_, err = failing.StartCheckoutFor(context.Background(), "acct-1", entitlement.TierBasis)
	assert.ErrorIs(t, err, core.ErrUpstreamFailure)
}

func TestVoidInvoice(t *testing.T) {
	api := &fakeProvider{}
	svc, _ := newTestService(t, api)

	require.NoError(t, svc.VoidInvoice(context.Background(), "in_1"))
	assert.Equal(t, []string{"in_1"}, api.voided)
	assert.ErrorIs(t, svc.VoidInvoice(context.Background(), ""), core.ErrInvalidInput)
}

func signedRequest(t *testing.T, event map[string]any, secret string) *http.Request {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func webhookRouter(reconciler Reconciler) http.Handler {
	r := chi.NewRouter()
	noAuth := func(next http.Handler) http.Handler { return next }
	NewHandler(nil, reconciler, testSecret, nil).RegisterRoutes(r, noAuth)
	return r
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	rec := &recordingReconciler{}
	router := webhookRouter(rec)

	event := map[string]any{
		"id":     "evt_1",
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_test_1",
				"object":              "checkout.session",
				"client_reference_id": "acct-1",
				"customer":            "cus_123",
				"subscription":        "sub_9",
				"metadata":            map[string]string{"tier": "mieter_plus"},
			},
		},
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, event, testSecret))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, rec.changes, 1)
	assert.Equal(t, Change{
		EventID:        "evt_1",
		AccountID:      "acct-1",
		CustomerID:     "cus_123",
		SubscriptionID: "sub_9",
		SessionID:      "cs_test_1",
		Tier:           entitlement.TierBasis,
	}, rec.changes[0])
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	rec := &recordingReconciler{}
	router := webhookRouter(rec)

	event := map[string]any{
		"id":     "evt_2",
		"object": "event",
		"type":   "customer.subscription.deleted",
		"data": map[string]any{
			"object": map[string]any{
				"id":       "sub_9",
				"object":   "subscription",
				"customer": "cus_123",
			},
		},
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, event, testSecret))
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, rec.changes, 1)
	assert.Equal(t, entitlement.TierFree, rec.changes[0].Tier)
	assert.Equal(t, "cus_123", rec.changes[0].CustomerID)
}

func TestWebhookRejectsBadSignatureAndIgnoresOthers(t *testing.T) {
	rec := &recordingReconciler{}
	router := webhookRouter(rec)

	event := map[string]any{
		"id":     "evt_3",
		"object": "event",
		"type":   "invoice.paid",
		"data":   map[string]any{"object": map[string]any{"id": "in_1"}},
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, event, "whsec_wrong"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, signedRequest(t, event, testSecret))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Empty(t, rec.changes)
}
