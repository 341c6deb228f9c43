// AngelaMos | 2026
// service.go

package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/config"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

// Accounts is the part of the account service billing writes through.
type Accounts interface {
	Get(ctx context.Context, id string) (*account.Account, error)
	Update(ctx context.Context, acct *account.Account) error
}

// provider is the subset of the Stripe API in use.
type provider interface {
	CreateCustomer(ctx context.Context, email, accountID string) (string, error)
	CreateCheckout(ctx context.Context, params *stripe.CheckoutSessionParams) (Session, error)
	VoidInvoice(ctx context.Context, invoiceID string) error
}

type Service struct {
	api      provider
	accounts Accounts
	cfg      config.StripeConfig
	timeout  time.Duration
	logger   *slog.Logger
}

func NewService(
	cfg config.StripeConfig,
	accounts Accounts,
	timeout time.Duration,
	logger *slog.Logger,
) *Service {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)

	return newService(&stripeProvider{api: sc}, cfg, accounts, timeout, logger)
}

func newService(
	api provider,
	cfg config.StripeConfig,
	accounts Accounts,
	timeout time.Duration,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:      api,
		accounts: accounts,
		cfg:      cfg,
		timeout:  timeout,
		logger:   logger,
	}
}

// StartCheckout opens a subscription checkout for acct at tier and records
// the customer and the pending checkout on the account. The tier itself only
// changes when the provider confirms payment.
func (s *Service) StartCheckout(
	ctx context.Context,
	acct *account.Account,
	tier entitlement.Tier,
) (Session, error) {
	if !entitlement.IsPaid(tier) {
		return Session{}, fmt.Errorf("start checkout: %q is not a paid tier: %w", tier, core.ErrInvalidInput)
	}

	priceID := s.cfg.PriceIDs[string(tier)]
	frontendURL := strings.TrimRight(s.cfg.FrontendURL, "/")
	if priceID == "" || frontendURL == "" {
		return Session{}, fmt.Errorf("start checkout: billing not configured for %s: %w",
			tier, core.ErrUpstreamFailure)
	}

	if acct.StripeCustomerID == nil {
		customerID, err := core.BoundedValue(ctx, s.timeout, "create stripe customer",
			func(ctx context.Context) (string, error) {
				return s.api.CreateCustomer(ctx, acct.Email, acct.ID)
			})
		if err != nil {
			return Session{}, upstream("create customer", err)
		}
		acct.StripeCustomerID = &customerID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          acct.StripeCustomerID,
		ClientReferenceID: stripe.String(acct.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/billing/success"),
		CancelURL:  stripe.String(frontendURL + "/billing/cancel"),
	}
	params.AddMetadata("account_id", acct.ID)
	params.AddMetadata("tier", string(tier))

	session, err := core.BoundedValue(ctx, s.timeout, "create checkout session",
		func(ctx context.Context) (Session, error) {
			return s.api.CreateCheckout(ctx, params)
		})
	if err != nil {
		return Session{}, upstream("create checkout session", err)
	}

	acct.PendingCheckoutID = &session.ID
	if err := s.accounts.Update(ctx, acct); err != nil {
		return Session{}, err
	}

	s.logger.InfoContext(ctx, "checkout started",
		"account_id", acct.ID,
		"tier", tier,
		"session_id", session.ID,
	)
	return session, nil
}

// StartCheckoutFor is StartCheckout for the signed-in account.
func (s *Service) StartCheckoutFor(
	ctx context.Context,
	accountID string,
	tier entitlement.Tier,
) (Session, error) {
	if accountID == "" {
		return Session{}, fmt.Errorf("start checkout: %w", core.ErrUnauthorized)
	}

	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return Session{}, err
	}

	return s.StartCheckout(ctx, acct, tier)
}

// VoidInvoice asks the provider to void an open invoice. The outcome is not
// tracked here.
func (s *Service) VoidInvoice(ctx context.Context, invoiceID string) error {
	if invoiceID == "" {
		return fmt.Errorf("void invoice: id required: %w", core.ErrInvalidInput)
	}

	err := core.Bounded(ctx, s.timeout, "void invoice",
		func(ctx context.Context) error {
			return s.api.VoidInvoice(ctx, invoiceID)
		})
	if err != nil {
		return upstream("void invoice", err)
	}

	s.logger.InfoContext(ctx, "invoice voided", "invoice_id", invoiceID)
	return nil
}

func upstream(op string, err error) error {
	if core.IsRetryable(err) {
		return err
	}
	return fmt.Errorf("%s: %v: %w", op, err, core.ErrUpstreamFailure)
}

type stripeProvider struct {
	api *client.API
}

func (p *stripeProvider) CreateCustomer(
	ctx context.Context,
	email, accountID string,
) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("account_id", accountID)

	cust, err := p.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (p *stripeProvider) CreateCheckout(
	ctx context.Context,
	params *stripe.CheckoutSessionParams,
) (Session, error) {
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}

func (p *stripeProvider) VoidInvoice(ctx context.Context, invoiceID string) error {
	params := &stripe.InvoiceVoidInvoiceParams{}
	params.Context = ctx

	_, err := p.api.Invoices.VoidInvoice(invoiceID, params)
	return err
}
