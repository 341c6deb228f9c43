// AngelaMos | 2026
// ledger.go

package quota

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/metrics"
)

// Store is the slice of the account repository the ledger writes through.
type Store interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
	IncrementQueries(ctx context.Context, id string) (int, error)
	SetQueries(ctx context.Context, id string, value int) (int, error)
}

// Usage is an authoritative read of an account's counter against its
// resolved budget.
type Usage struct {
	AccountID string           `json:"account_id"`
	Tier      entitlement.Tier `json:"tier"`
	Used      int              `json:"used"`
	Limit     int              `json:"limit"`
	Unbounded bool             `json:"unbounded"`
	ReadAt    time.Time        `json:"read_at"`
}

// Remaining is never negative; unbounded budgets report -1.
func (u Usage) Remaining() int {
	if u.Unbounded {
		return -1
	}
	return max(u.Limit-u.Used, 0)
}

func (u Usage) Exhausted() bool {
	return !u.Unbounded && u.Used >= u.Limit
}

type Ledger struct {
	store    Store
	resolver *entitlement.Resolver
	audit    audit.Logger
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type LedgerConfig struct {
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func NewLedger(
	store Store,
	resolver *entitlement.Resolver,
	auditLog audit.Logger,
	cfg LedgerConfig,
) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:    store,
		resolver: resolver,
		audit:    auditLog,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Increment charges one action and returns the new counter. The increment is
// a single atomic statement in the store, so concurrent charges are never lost.
// On ErrStorageTimeout the charge may or may not have landed.
func (l *Ledger) Increment(ctx context.Context, accountID string) (int, error) {
	ctx, span := core.StartSpan(ctx, "quota.increment",
		attribute.String("account.id", accountID))
	defer span.End()

	used, err := core.BoundedValue(ctx, l.timeout, "increment queries",
		func(ctx context.Context) (int, error) {
			return l.store.IncrementQueries(ctx, accountID)
		})
	l.metrics.LedgerWrite("increment", err)
	if err != nil {
		core.SetSpanError(span, err)
		return 0, err
	}

	span.SetAttributes(attribute.Int("quota.used", used))
	return used, nil
}

// SetAbsolute overwrites the counter. It is privileged: callers must have
// authorised operatorID, and every call is audited with the replaced value.
func (l *Ledger) SetAbsolute(
	ctx context.Context,
	operatorID, accountID string,
	value int,
) (int, error) {
	return l.overwrite(ctx, operatorID, accountID, value, audit.ActionSetQueries)
}

// Reset is SetAbsolute to zero, audited as a reset.
func (l *Ledger) Reset(ctx context.Context, operatorID, accountID string) (int, error) {
	return l.overwrite(ctx, operatorID, accountID, 0, audit.ActionResetQueries)
}

func (l *Ledger) overwrite(
	ctx context.Context,
	operatorID, accountID string,
	value int,
	action string,
) (int, error) {
	if value < 0 {
		return 0, fmt.Errorf("set queries: value %d below zero: %w", value, core.ErrInvalidInput)
	}
	if operatorID == "" {
		return 0, fmt.Errorf("set queries: operator required: %w", core.ErrUnauthorized)
	}

	ctx, span := core.StartSpan(ctx, "quota."+action,
		attribute.String("account.id", accountID),
		attribute.String("operator.id", operatorID))
	defer span.End()

	previous, err := core.BoundedValue(ctx, l.timeout, "set queries",
		func(ctx context.Context) (int, error) {
			return l.store.SetQueries(ctx, accountID, value)
		})
	l.metrics.LedgerWrite(action, err)
	if err != nil {
		core.SetSpanError(span, err)
		return 0, err
	}

	//nolint:errcheck // Record logs persist failures itself
	_ = l.audit.Record(ctx, audit.Entry{
		ActorID:  operatorID,
		TargetID: accountID,
		Action:   action,
		OldValue: strconv.Itoa(previous),
		NewValue: strconv.Itoa(value),
	})

	return previous, nil
}

// Get is an authoritative read; it never consults any client-held copy.
func (l *Ledger) Get(ctx context.Context, accountID string) (Usage, error) {
	acct, err := core.BoundedValue(ctx, l.timeout, "get usage",
		func(ctx context.Context) (*account.Account, error) {
			return l.store.GetByID(ctx, accountID)
		})
	if err != nil {
		return Usage{}, err
	}

	return l.UsageOf(acct), nil
}

// UsageOf resolves an already loaded account into a Usage.
func (l *Ledger) UsageOf(acct *account.Account) Usage {
	ent, err := l.resolver.Resolve(acct.Record())
	if err != nil {
		l.logger.Warn("resolving usage with fallback entitlement",
			"account_id", acct.ID,
			"error", err,
		)
	}

	return Usage{
		AccountID: acct.ID,
		Tier:      ent.Tier,
		Used:      acct.QueriesUsed,
		Limit:     ent.QueryLimit,
		Unbounded: ent.Unbounded,
		ReadAt:    l.now().UTC(),
	}
}
