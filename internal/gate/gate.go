// AngelaMos | 2026
// gate.go

package gate

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/metrics"
)

type AccountSource interface {
	Resolve(ctx context.Context, id string) (*account.Account, entitlement.Entitlement, error)
}

type AnonymousLimiter interface {
	Check(ctx context.Context, fingerprint string) (bool, int)
	Increment(ctx context.Context, fingerprint string) (int, bool)
	Budget() int
}

type Ledger interface {
	Increment(ctx context.Context, accountID string) (int, error)
}

type Gate struct {
	accounts  AccountSource
	anonymous AnonymousLimiter
	ledger    Ledger
	catalog   *entitlement.Catalog
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Config struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func New(
	accounts AccountSource,
	anonymous AnonymousLimiter,
	ledger Ledger,
	catalog *entitlement.Catalog,
	cfg Config,
) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		accounts:  accounts,
		anonymous: anonymous,
		ledger:    ledger,
		catalog:   catalog,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Check decides whether actor may perform action. It performs no writes and
// is safe to call concurrently. An error is returned only for infrastructure
// failures, and an error is never accompanied by an Allow.
func (g *Gate) Check(ctx context.Context, actor Actor, action Action) (Decision, error) {
	ctx, span := core.StartSpan(ctx, "gate.check",
		attribute.String("gate.action", string(action)),
		attribute.Bool("gate.anonymous", actor.Anonymous()))
	defer span.End()

	feature, ok := action.Feature()
	if !ok {
		return Decision{}, fmt.Errorf("check %q: unknown action: %w", action, core.ErrInvalidInput)
	}

	var (
		decision Decision
		err      error
	)
	if actor.Anonymous() {
		decision = g.checkAnonymous(ctx, actor, action, feature)
	} else {
		decision, err = g.checkAccount(ctx, actor, action, feature)
	}
	if err != nil {
		core.SetSpanError(span, err)
		return Decision{}, err
	}

	span.SetAttributes(
		attribute.Bool("gate.allowed", decision.Allowed),
		attribute.String("gate.reason", string(decision.Reason)),
	)
	g.metrics.GateDecision(string(action), decision.outcome(), string(decision.Reason))

	if !decision.Allowed {
		g.logger.DebugContext(ctx, "gate denied",
			"action", action,
			"reason", decision.Reason,
			"required_tier", decision.RequiredTier,
			"account_id", actor.AccountID,
		)
	}

	return decision, nil
}

func (g *Gate) checkAnonymous(
	ctx context.Context,
	actor Actor,
	action Action,
	feature entitlement.Feature,
) Decision {
	decision := Decision{
		Action: action,
		Limit:  g.anonymous.Budget(),
	}

	minimal, _ := g.catalog.MinimalTierFor(feature)
	if actor.Fingerprint == "" || minimal != entitlement.TierFree {
		decision.Reason = ReasonRegisterRequired
		decision.RequiredTier = minimal
		return decision
	}

	allowed, used := g.anonymous.Check(ctx, actor.Fingerprint)
	decision.Used = used
	if !allowed {
		decision.Reason = ReasonRegisterRequired
		decision.RequiredTier = entitlement.TierFree
		return decision
	}

	decision.Allowed = true
	return decision
}

func (g *Gate) checkAccount(
	ctx context.Context,
	actor Actor,
	action Action,
	feature entitlement.Feature,
) (Decision, error) {
	acct, ent, err := g.accounts.Resolve(ctx, actor.AccountID)
	if err != nil {
		return Decision{}, fmt.Errorf("check %q: %w", action, err)
	}

	decision := Decision{
		Action:                action,
		Tier:                  ent.Tier,
		DeclaredTarget:        ent.DeclaredTarget,
		Used:                  acct.QueriesUsed,
		Limit:                 ent.QueryLimit,
		Unbounded:             ent.Unbounded,
		SuppressUpgradePrompt: ent.TestUser,
	}

	quotaOK := ent.Unbounded || acct.QueriesUsed < ent.QueryLimit
	featureOK := ent.HasFeature(feature)

	if quotaOK && featureOK {
		decision.Allowed = true
		return decision, nil
	}

	var required entitlement.Tier
	if !quotaOK {
		decision.Reason = ReasonQuotaExceeded
		// The suggestion must clear the denial: above the current tier and
		// with room for the queries already spent, overrides included.
		if next, ok := g.catalog.NextTier(ent.Tier); ok {
			required = entitlement.Higher(next, g.catalog.TierAdmitting(acct.QueriesUsed))
		}
	}
	if !featureOK {
		if decision.Reason == "" {
			decision.Reason = ReasonTierUpgradeRequired
		}
		minimal, _ := g.catalog.MinimalTierFor(feature)
		required = entitlement.Higher(required, minimal)
	}
	decision.RequiredTier = required

	return decision, nil
}

// Charge records one billable action for actor. Call it only after the gated
// action succeeded. Anonymous charges that cannot be stored are dropped.
func (g *Gate) Charge(ctx context.Context, actor Actor) (int, error) {
	if actor.Anonymous() {
		used, ok := g.anonymous.Increment(ctx, actor.Fingerprint)
		if !ok {
			core.AddSpanEvent(ctx, "gate.anonymous_charge_dropped")
			return 0, nil
		}
		return used, nil
	}

	used, err := g.ledger.Increment(ctx, actor.AccountID)
	if err != nil {
		return 0, fmt.Errorf("charge: %w", err)
	}
	return used, nil
}

// Run is check, act, then charge. A denied check returns *DeniedError and fn
// is not called; a failed fn is never charged.
func (g *Gate) Run(
	ctx context.Context,
	actor Actor,
	action Action,
	fn func(ctx context.Context) error,
) (Decision, error) {
	decision, err := g.Check(ctx, actor, action)
	if err != nil {
		return decision, err
	}
	if !decision.Allowed {
		return decision, &DeniedError{Decision: decision}
	}

	if err := fn(ctx); err != nil {
		return decision, err
	}

	used, err := g.Charge(ctx, actor)
	if err != nil {
		return decision, err
	}
	if used > 0 {
		decision.Used = used
	}
	return decision, nil
}
