// AngelaMos | 2026
// manager.go

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/metrics"
	"github.com/carterperez-dev/legalquota/internal/outbox"
)

const freeTierPrefix = "free"

// Accounts is the slice of the account store the lifecycle needs.
type Accounts interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
	ListByTierPrefix(ctx context.Context, prefix string) ([]account.Account, error)
	SetScheduledDeletion(ctx context.Context, id string, at *time.Time) error
}

// AdminChecker resolves admin capability from the account record.
type AdminChecker interface {
	IsAdmin(ctx context.Context, accountID string) (bool, error)
}

type Emitter interface {
	Emit(ctx context.Context, event outbox.Event) (bool, error)
}

type Config struct {
	InactivityAfter time.Duration
	DeletionGrace   time.Duration
	Timeout         time.Duration
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

type Manager struct {
	accounts Accounts
	requests RequestRepository
	eraser   Eraser
	events   Emitter
	audit    audit.Logger
	admins   AdminChecker
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(
	accounts Accounts,
	requests RequestRepository,
	eraser Eraser,
	events Emitter,
	auditLog audit.Logger,
	admins AdminChecker,
	cfg Config,
) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		accounts: accounts,
		requests: requests,
		eraser:   eraser,
		events:   events,
		audit:    auditLog,
		admins:   admins,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// IsInactive reports whether acct is a free-family account that has not been
// seen for the inactivity period. Paying accounts are never flagged.
func (m *Manager) IsInactive(acct *account.Account, now time.Time) bool {
	if !entitlement.IsFreeFamily(acct.Tier) {
		return false
	}
	return now.Sub(acct.LastSeen()) >= m.cfg.InactivityAfter
}

func (m *Manager) StateOf(acct *account.Account, now time.Time) State {
	switch {
	case acct.IsDeletionScheduled():
		return StateDeletionScheduled
	case m.IsInactive(acct, now):
		return StateInactivityFlagged
	default:
		return StateActive
	}
}

func (m *Manager) report(acct *account.Account, now time.Time) Report {
	return Report{
		AccountID:           acct.ID,
		Email:               acct.Email,
		Tier:                acct.Tier,
		State:               m.StateOf(acct, now),
		LastSeenAt:          acct.LastSeen(),
		InactiveFor:         now.Sub(acct.LastSeen()).Truncate(time.Hour).String(),
		ScheduledDeletionAt: acct.ScheduledDeletionAt,
	}
}

func (m *Manager) State(ctx context.Context, accountID string) (Report, error) {
	acct, err := m.get(ctx, accountID)
	if err != nil {
		return Report{}, err
	}
	return m.report(acct, m.now()), nil
}

// Sweep lists free-family accounts that are flagged or already scheduled.
// It never writes; scheduling is a separate operator action.
func (m *Manager) Sweep(ctx context.Context) ([]Report, error) {
	accounts, err := core.BoundedValue(ctx, m.cfg.Timeout, "list free accounts",
		func(ctx context.Context) ([]account.Account, error) {
			return m.accounts.ListByTierPrefix(ctx, freeTierPrefix)
		})
	if err != nil {
		return nil, err
	}

	now := m.now()
	reports := make([]Report, 0)
	for i := range accounts {
		r := m.report(&accounts[i], now)
		if r.State != StateActive {
			reports = append(reports, r)
		}
	}

	m.logger.InfoContext(ctx, "lifecycle sweep",
		"scanned", len(accounts),
		"flagged", len(reports),
	)
	return reports, nil
}

// ScheduleDeletion moves an inactive account to DeletionScheduled with the
// grace period from now. Scheduling an already scheduled account changes
// nothing and emits no second notification.
func (m *Manager) ScheduleDeletion(
	ctx context.Context,
	op audit.Op,
	accountID string,
) (*account.Account, error) {
	if err := m.authorize(ctx, op); err != nil {
		return nil, fmt.Errorf("schedule deletion: %w", err)
	}

	acct, err := m.get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if acct.IsDeletionScheduled() {
		return acct, m.emitScheduled(ctx, acct)
	}

	now := m.now()
	if !m.IsInactive(acct, now) {
		return nil, fmt.Errorf("schedule deletion: account %s is not inactive: %w",
			accountID, core.ErrConflict)
	}

	at := now.Add(m.cfg.DeletionGrace).UTC()
	if err := m.setScheduled(ctx, accountID, &at); err != nil {
		return nil, err
	}
	acct.ScheduledDeletionAt = &at

	m.cfg.Metrics.LifecycleTransition("scheduled")
	m.record(ctx, op, accountID, audit.ActionScheduleDelete, "", at.Format(time.RFC3339))

	return acct, m.emitScheduled(ctx, acct)
}

// emitScheduled is keyed on the scheduled timestamp, so retrying a schedule
// whose notification was lost re-emits it exactly once.
func (m *Manager) emitScheduled(ctx context.Context, acct *account.Account) error {
	at := *acct.ScheduledDeletionAt
	_, err := m.events.Emit(ctx, outbox.Event{
		DedupeKey:  outbox.DedupeKey(outbox.KindDeletionScheduled, acct.ID, at.Format(time.RFC3339)),
		AccountID:  acct.ID,
		Kind:       outbox.KindDeletionScheduled,
		Recipient:  acct.Email,
		TemplateID: string(outbox.KindDeletionScheduled),
		Params: outbox.Params{
			"name":          displayName(acct),
			"deletion_date": at.Format("2006-01-02"),
		},
	})
	return err
}

// CancelDeletion returns a scheduled account to Active. Cancelling an account
// that is not scheduled is a no-op.
func (m *Manager) CancelDeletion(
	ctx context.Context,
	op audit.Op,
	accountID string,
) (*account.Account, error) {
	if err := m.authorize(ctx, op); err != nil {
		return nil, fmt.Errorf("cancel deletion: %w", err)
	}

	acct, err := m.get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsDeletionScheduled() {
		return acct, nil
	}

	previous := *acct.ScheduledDeletionAt
	if err := m.setScheduled(ctx, accountID, nil); err != nil {
		return nil, err
	}
	acct.ScheduledDeletionAt = nil

	m.cfg.Metrics.LifecycleTransition("cancelled")
	m.record(ctx, op, accountID, audit.ActionCancelDelete, previous.Format(time.RFC3339), "")

	_, err = m.events.Emit(ctx, outbox.Event{
		DedupeKey:  outbox.DedupeKey(outbox.KindDeletionCancelled, acct.ID, previous.Format(time.RFC3339)),
		AccountID:  acct.ID,
		Kind:       outbox.KindDeletionCancelled,
		TemplateID: string(outbox.KindDeletionCancelled),
	})
	return acct, err
}

// ExecuteDeletion irreversibly deletes a scheduled account and its
// notifications. It is only ever called by an operator.
func (m *Manager) ExecuteDeletion(ctx context.Context, op audit.Op, accountID string) error {
	if err := m.authorize(ctx, op); err != nil {
		return fmt.Errorf("execute deletion: %w", err)
	}

	acct, err := m.get(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.IsDeletionScheduled() {
		return fmt.Errorf("execute deletion: account %s is not scheduled: %w",
			accountID, core.ErrConflict)
	}

	return m.erase(ctx, op, acct, audit.ActionExecuteDelete)
}

// RequestDeletion files a user's own deletion request. A second request while
// one is pending returns the existing one.
func (m *Manager) RequestDeletion(
	ctx context.Context,
	accountID string,
	reason string,
) (*DeletionRequest, error) {
	if accountID == "" {
		return nil, fmt.Errorf("request deletion: %w", core.ErrUnauthorized)
	}

	existing, err := core.BoundedValue(ctx, m.cfg.Timeout, "get pending deletion request",
		func(ctx context.Context) (*DeletionRequest, error) {
			return m.requests.GetPendingByAccount(ctx, accountID)
		})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	req := &DeletionRequest{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Status:    RequestPending,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		req.Reason = &reason
	}

	err = core.Bounded(ctx, m.cfg.Timeout, "create deletion request",
		func(ctx context.Context) error {
			return m.requests.Create(ctx, req)
		})
	if err != nil {
		return nil, err
	}

	m.cfg.Metrics.LifecycleTransition("requested")
	m.logger.InfoContext(ctx, "deletion requested",
		"request_id", req.ID,
		"account_id", accountID,
	)
	return req, nil
}

// ProcessDeletionRequest executes a pending request from any state, skipping
// the scheduled phase. Processing a completed request is a no-op.
func (m *Manager) ProcessDeletionRequest(
	ctx context.Context,
	op audit.Op,
	requestID string,
) (*DeletionRequest, error) {
	if err := m.authorize(ctx, op); err != nil {
		return nil, fmt.Errorf("process deletion request: %w", err)
	}

	req, err := core.BoundedValue(ctx, m.cfg.Timeout, "get deletion request",
		func(ctx context.Context) (*DeletionRequest, error) {
			return m.requests.GetByID(ctx, requestID)
		})
	if err != nil {
		return nil, err
	}
	if req.Status == RequestCompleted {
		return req, nil
	}

	acct, err := m.get(ctx, req.AccountID)
	switch {
	case err == nil:
		if err := m.erase(ctx, op, acct, audit.ActionProcessRequest); err != nil {
			return nil, err
		}
	case errors.Is(err, core.ErrNotFound):
		m.logger.InfoContext(ctx, "deletion request for missing account",
			"request_id", req.ID,
			"account_id", req.AccountID,
		)
	default:
		return nil, err
	}

	completedAt := m.now().UTC()
	err = core.Bounded(ctx, m.cfg.Timeout, "complete deletion request",
		func(ctx context.Context) error {
			return m.requests.MarkCompleted(ctx, req.ID, completedAt)
		})
	if err != nil {
		return nil, err
	}

	req.Status = RequestCompleted
	req.CompletedAt = &completedAt
	return req, nil
}

func (m *Manager) ListDeletionRequests(
	ctx context.Context,
	status RequestStatus,
	limit int,
) ([]DeletionRequest, error) {
	return core.BoundedValue(ctx, m.cfg.Timeout, "list deletion requests",
		func(ctx context.Context) ([]DeletionRequest, error) {
			return m.requests.List(ctx, status, limit)
		})
}

func (m *Manager) erase(
	ctx context.Context,
	op audit.Op,
	acct *account.Account,
	action string,
) error {
	err := core.Bounded(ctx, m.cfg.Timeout, "erase account",
		func(ctx context.Context) error {
			return m.eraser.EraseAccount(ctx, acct.ID)
		})
	if err != nil {
		return err
	}

	m.cfg.Metrics.LifecycleTransition("executed")
	m.logger.InfoContext(ctx, "account deleted",
		"account_id", acct.ID,
		"operator", op.Actor,
	)

	m.record(ctx, op, acct.ID, action, acct.Email, "")

	_, err = m.events.Emit(ctx, outbox.Event{
		DedupeKey:  outbox.DedupeKey(outbox.KindAccountDeleted, acct.ID, "erased"),
		AccountID:  acct.ID,
		Kind:       outbox.KindAccountDeleted,
		Recipient:  acct.Email,
		TemplateID: string(outbox.KindAccountDeleted),
		Params:     outbox.Params{"name": displayName(acct)},
	})
	return err
}

// authorize admits only operators whose account currently holds admin
// capability. The HTTP routes check this too; the CLI relies on it alone.
func (m *Manager) authorize(ctx context.Context, op audit.Op) error {
	if err := op.Validate(); err != nil {
		return err
	}

	ok, err := m.admins.IsAdmin(ctx, op.Actor)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return fmt.Errorf("operator %s: %w", op.Actor, core.ErrForbidden)
	case err != nil:
		return err
	case !ok:
		return fmt.Errorf("operator %s is not an administrator: %w", op.Actor, core.ErrForbidden)
	}
	return nil
}

func (m *Manager) get(ctx context.Context, id string) (*account.Account, error) {
	return core.BoundedValue(ctx, m.cfg.Timeout, "get account",
		func(ctx context.Context) (*account.Account, error) {
			return m.accounts.GetByID(ctx, id)
		})
}

func (m *Manager) setScheduled(ctx context.Context, id string, at *time.Time) error {
	return core.Bounded(ctx, m.cfg.Timeout, "set scheduled deletion",
		func(ctx context.Context) error {
			return m.accounts.SetScheduledDeletion(ctx, id, at)
		})
}

// record audits a transition that already happened; Record logs its own
// persist failures.
func (m *Manager) record(
	ctx context.Context,
	op audit.Op,
	target, action, oldValue, newValue string,
) {
	//nolint:errcheck // Record logs persist failures itself
	_ = m.audit.Record(ctx, audit.Entry{
		ActorID:  op.Actor,
		TargetID: target,
		Action:   action,
		OldValue: oldValue,
		NewValue: newValue,
	})
}

func displayName(acct *account.Account) string {
	if acct.Name != "" {
		return acct.Name
	}
	return acct.Email
}
