// AngelaMos | 2026
// service.go

package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/billing"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/outbox"
	"github.com/carterperez-dev/legalquota/internal/quota"
)

const unlimited = "unlimited"

// ProtectedAdminError rejects revoking an allow-listed administrator.
type ProtectedAdminError struct {
	Email string
}

func (e *ProtectedAdminError) Error() string {
	return fmt.Sprintf("%s is a protected administrator", e.Email)
}

func (e *ProtectedAdminError) Is(target error) bool {
	return target == core.ErrForbidden
}

type Accounts interface {
	Get(ctx context.Context, id string) (*account.Account, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*account.Account, error)
	Create(ctx context.Context, acct *account.Account) error
	Update(ctx context.Context, acct *account.Account) error
	List(ctx context.Context, params account.ListParams) ([]account.Account, int, error)
	Entitle(acct *account.Account) entitlement.Entitlement
	IsAdmin(ctx context.Context, id string) (bool, error)
	Resolver() *entitlement.Resolver
}

type Ledger interface {
	SetAbsolute(ctx context.Context, operatorID, accountID string, value int) (int, error)
	Reset(ctx context.Context, operatorID, accountID string) (int, error)
	Get(ctx context.Context, accountID string) (quota.Usage, error)
}

type Emitter interface {
	Emit(ctx context.Context, event outbox.Event) (bool, error)
}

// Checkout opens a billing checkout for a paying account.
type Checkout interface {
	StartCheckout(ctx context.Context, acct *account.Account, tier entitlement.Tier) (billing.Session, error)
}

type AnonymousClearer interface {
	Clear(ctx context.Context, fingerprint string) error
}

type Service struct {
	accounts  Accounts
	ledger    Ledger
	events    Emitter
	audit     audit.Logger
	checkout  Checkout
	anonymous AnonymousClearer
	catalog   *entitlement.Catalog
	logger    *slog.Logger
}

func NewService(
	accounts Accounts,
	ledger Ledger,
	events Emitter,
	auditLog audit.Logger,
	checkout Checkout,
	anonymous AnonymousClearer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts:  accounts,
		ledger:    ledger,
		events:    events,
		audit:     auditLog,
		checkout:  checkout,
		anonymous: anonymous,
		catalog:   accounts.Resolver().Catalog(),
		logger:    logger,
	}
}

// authorize checks that op names an administrator. Any failure to establish
// that is a refusal.
func (s *Service) authorize(ctx context.Context, op audit.Op) error {
	if err := op.Validate(); err != nil {
		return err
	}

	ok, err := s.accounts.IsAdmin(ctx, op.Actor)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("operator %s: %w", op.Actor, core.ErrForbidden)
		}
		return err
	}
	if !ok {
		return fmt.Errorf("operator %s is not an administrator: %w", op.Actor, core.ErrForbidden)
	}
	return nil
}

func (s *Service) GetAccount(ctx context.Context, op audit.Op, id string) (*AccountDetail, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return &AccountDetail{
		Account:     account.ToAccountResponse(acct),
		Entitlement: s.accounts.Entitle(acct),
	}, nil
}

func (s *Service) ListAccounts(
	ctx context.Context,
	op audit.Op,
	params account.ListParams,
) ([]account.Account, int, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, 0, err
	}
	return s.accounts.List(ctx, params)
}

// ChangeTier moves an account to tier, resets its stored limit to the catalog
// value and drops any limit override. Setting the current tier again is a
// no-op.
func (s *Service) ChangeTier(
	ctx context.Context,
	op audit.Op,
	id string,
	rawTier string,
) (*account.Account, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, err
	}

	tier, err := entitlement.ParseTier(rawTier)
	if err != nil {
		return nil, fmt.Errorf("change tier: %v: %w", err, core.ErrInvalidInput)
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return acct, s.applyTier(ctx, op, acct, tier, false)
}

// applyTier writes tier to acct. dirty marks other pending field changes that
// must be saved even when the tier stays the same.
func (s *Service) applyTier(
	ctx context.Context,
	op audit.Op,
	acct *account.Account,
	tier entitlement.Tier,
	dirty bool,
) error {
	previous := acct.Tier
	tierChanged := previous != string(tier)
	reset := tierChanged || acct.LimitOverridden || acct.DashboardType != nil
	if !reset && !dirty {
		return nil
	}

	if reset {
		acct.Tier = string(tier)
		acct.QueriesLimit = s.catalog.LimitFor(tier)
		acct.LimitOverridden = false
		acct.DashboardType = nil
		if entitlement.IsPaid(tier) {
			acct.PendingCheckoutID = nil
		}
	}

	if err := s.accounts.Update(ctx, acct); err != nil {
		return err
	}
	if !reset {
		return nil
	}

	s.record(ctx, op, acct.ID, audit.ActionChangeTier, previous, string(tier))
	if !tierChanged {
		return nil
	}

	op = op.Tokenized()
	s.emit(ctx, outbox.Event{
		DedupeKey:  outbox.DedupeKey(outbox.KindTierChanged, acct.ID, previous+">"+string(tier)+":"+op.Token),
		AccountID:  acct.ID,
		Kind:       outbox.KindTierChanged,
		Recipient:  acct.Email,
		TemplateID: string(outbox.KindTierChanged),
		Params: outbox.Params{
			"old_tier": previous,
			"new_tier": string(tier),
			"limit":    s.limitLabel(tier),
			"name":     displayName(acct),
		},
	})
	return nil
}

func (s *Service) SetQueryCount(
	ctx context.Context,
	op audit.Op,
	id string,
	value int,
) (quota.Usage, error) {
	if err := s.authorize(ctx, op); err != nil {
		return quota.Usage{}, err
	}

	if _, err := s.ledger.SetAbsolute(ctx, op.Actor, id, value); err != nil {
		return quota.Usage{}, err
	}
	return s.ledger.Get(ctx, id)
}

func (s *Service) ResetQueryCount(ctx context.Context, op audit.Op, id string) (quota.Usage, error) {
	if err := s.authorize(ctx, op); err != nil {
		return quota.Usage{}, err
	}

	if _, err := s.ledger.Reset(ctx, op.Actor, id); err != nil {
		return quota.Usage{}, err
	}
	return s.ledger.Get(ctx, id)
}

// SetQueryLimit overrides the catalog limit for one account. The override
// survives until ClearQueryLimit or a tier change.
func (s *Service) SetQueryLimit(
	ctx context.Context,
	op audit.Op,
	id string,
	limit int,
) (*account.Account, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("set query limit: %d below zero: %w", limit, core.ErrInvalidInput)
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := s.limitValue(acct)
	acct.QueriesLimit = limit
	acct.LimitOverridden = true

	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}

	s.record(ctx, op, id, audit.ActionSetLimit, previous, strconv.Itoa(limit))
	return acct, nil
}

// ClearQueryLimit drops an override and restores the catalog limit of the
// account's effective tier.
func (s *Service) ClearQueryLimit(ctx context.Context, op audit.Op, id string) (*account.Account, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acct.LimitOverridden {
		return acct, nil
	}

	previous := s.limitValue(acct)
	acct.LimitOverridden = false
	tier := s.accounts.Entitle(acct).Tier
	acct.QueriesLimit = s.catalog.LimitFor(tier)

	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}

	s.record(ctx, op, id, audit.ActionSetLimit, previous, "catalog")
	return acct, nil
}

func (s *Service) GrantAdmin(ctx context.Context, op audit.Op, id string) (*account.Account, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.IsAdmin {
		return acct, nil
	}

	acct.IsAdmin = true
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}

	s.record(ctx, op, id, audit.ActionGrantAdmin, "false", "true")
	return acct, nil
}

// RevokeAdmin clears the stored admin flag. Allow-listed identities cannot be
// revoked and the account is left untouched.
func (s *Service) RevokeAdmin(ctx context.Context, op audit.Op, id string) (*account.Account, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.accounts.Resolver().IsProtectedAdmin(acct.Email) {
		return nil, &ProtectedAdminError{Email: acct.Email}
	}
	if !acct.IsAdmin {
		return acct, nil
	}

	acct.IsAdmin = false
	if err := s.accounts.Update(ctx, acct); err != nil {
		return nil, err
	}

	s.record(ctx, op, id, audit.ActionRevokeAdmin, "true", "false")
	return acct, nil
}

// ProvisionAccount creates an account on behalf of a customer. A comped
// account gets its tier at once and is marked as a test user. A paying
// account starts on the free placeholder for its target tier and receives a
// checkout link; the tier itself is applied when billing confirms.
func (s *Service) ProvisionAccount(
	ctx context.Context,
	op audit.Op,
	req ProvisionRequest,
) (*ProvisionResult, error) {
	if err := s.authorize(ctx, op); err != nil {
		return nil, err
	}

	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		return nil, fmt.Errorf("provision account: %v: %w", err, core.ErrInvalidInput)
	}

	paying := !req.Comped && entitlement.IsPaid(tier)

	acct := &account.Account{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		Tier:         string(tier),
		QueriesLimit: s.catalog.LimitFor(tier),
		IsTestUser:   req.Comped,
	}
	if paying {
		acct.Tier = entitlement.FreePlaceholder(tier)
		acct.QueriesLimit = s.catalog.LimitFor(entitlement.TierFree)
	}

	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}

	result := &ProvisionResult{Account: account.ToAccountResponse(acct)}

	if paying && s.checkout != nil {
		session, err := s.checkout.StartCheckout(ctx, acct, tier)
		if err != nil {
			s.logger.WarnContext(ctx, "checkout for provisioned account failed",
				"account_id", acct.ID,
				"tier", tier,
				"error", err,
			)
		} else {
			result.CheckoutURL = session.URL
			result.Account = account.ToAccountResponse(acct)
		}
	}

	s.record(ctx, op, acct.ID, audit.ActionProvision, "", acct.Tier)

	s.emit(ctx, outbox.Event{
		DedupeKey:  outbox.DedupeKey(outbox.KindAccountProvisioned, acct.ID, "provisioned"),
		AccountID:  acct.ID,
		Kind:       outbox.KindAccountProvisioned,
		Recipient:  acct.Email,
		TemplateID: string(outbox.KindAccountProvisioned),
		Params: outbox.Params{
			"tier":         string(tier),
			"name":         displayName(acct),
			"checkout_url": result.CheckoutURL,
		},
	})

	return result, nil
}

// ClearAnonymous drops a visitor's anonymous counter. The fingerprint itself
// never reaches the audit trail.
func (s *Service) ClearAnonymous(ctx context.Context, op audit.Op, fingerprint string) error {
	if err := s.authorize(ctx, op); err != nil {
		return err
	}
	if strings.TrimSpace(fingerprint) == "" {
		return fmt.Errorf("clear anonymous: fingerprint required: %w", core.ErrInvalidInput)
	}

	if err := s.anonymous.Clear(ctx, fingerprint); err != nil {
		return err
	}

	s.record(ctx, op, "anonymous", audit.ActionClearAnonymous, "", "cleared")
	return nil
}

// ReconcileSubscription applies a confirmed billing change through the same
// tier path operators use, attributed to the billing system.
func (s *Service) ReconcileSubscription(ctx context.Context, change billing.Change) error {
	acct, err := s.accountForChange(ctx, change)
	if err != nil {
		return err
	}

	op := audit.Op{Actor: billing.SystemActor, Token: change.EventID}

	if change.CustomerID != "" {
		acct.StripeCustomerID = account.StringPtr(change.CustomerID)
	}

	tier := change.Tier
	if tier == entitlement.TierFree {
		acct.StripeSubscriptionID = nil
		if acct.IsTestUser {
			s.logger.InfoContext(ctx, "subscription ended on comped account, tier kept",
				"account_id", acct.ID,
			)
			return s.accounts.Update(ctx, acct)
		}
	} else if change.SubscriptionID != "" {
		acct.StripeSubscriptionID = account.StringPtr(change.SubscriptionID)
	}
	acct.PendingCheckoutID = nil

	if err := s.applyTier(ctx, op, acct, tier, true); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription reconciled",
		"account_id", acct.ID,
		"tier", tier,
		"event_id", change.EventID,
	)
	return nil
}

func (s *Service) accountForChange(ctx context.Context, change billing.Change) (*account.Account, error) {
	if change.AccountID != "" {
		return s.accounts.Get(ctx, change.AccountID)
	}
	if change.CustomerID != "" {
		return s.accounts.GetByStripeCustomerID(ctx, change.CustomerID)
	}
	return nil, fmt.Errorf("reconcile subscription: no account reference: %w", core.ErrInvalidInput)
}

// emit is best effort: the state change already happened, a lost
// notification is logged.
func (s *Service) emit(ctx context.Context, event outbox.Event) {
	if _, err := s.events.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "emit lifecycle event",
			"kind", event.Kind,
			"account_id", event.AccountID,
			"error", err,
		)
	}
}

func (s *Service) record(ctx context.Context, op audit.Op, target, action, oldValue, newValue string) {
	//nolint:errcheck // Record logs persist failures itself
	_ = s.audit.Record(ctx, audit.Entry{
		ActorID:  op.Actor,
		TargetID: target,
		Action:   action,
		OldValue: oldValue,
		NewValue: newValue,
	})
}

func (s *Service) limitLabel(tier entitlement.Tier) string {
	if s.catalog.IsUnbounded(tier) {
		return unlimited
	}
	return strconv.Itoa(s.catalog.LimitFor(tier))
}

func (s *Service) limitValue(acct *account.Account) string {
	if !acct.LimitOverridden {
		return "catalog"
	}
	return strconv.Itoa(acct.QueriesLimit)
}

func displayName(acct *account.Account) string {
	if acct.Name != "" {
		return acct.Name
	}
	return acct.Email
}
