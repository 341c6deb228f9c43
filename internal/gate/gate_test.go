// AngelaMos | 2026
// gate_test.go

package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/account/accounttest"
	"github.com/carterperez-dev/legalquota/internal/anonymous"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/middleware"
	"github.com/carterperez-dev/legalquota/internal/quota"
)

type fixture struct {
	gate   *Gate
	repo   *accounttest.Repository
	ledger *quota.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := core.NewFingerprintHasher("gate-test")
	require.NoError(t, err)

	catalog := entitlement.NewCatalog()
	resolver := entitlement.NewResolver(catalog, nil)
	repo := accounttest.NewRepository()
	accounts := account.NewService(repo, resolver, time.Second, nil)
	ledger := quota.NewLedger(repo, resolver,
		audit.NewRecorder(audit.NewMemoryRepository(), time.Second, nil),
		quota.LedgerConfig{Timeout: time.Second})
	limiter := anonymous.NewLimiter(rdb, hasher, anonymous.Config{Budget: 3, Timeout: time.Second})

	return &fixture{
		gate:   New(accounts, limiter, ledger, catalog, Config{}),
		repo:   repo,
		ledger: ledger,
	}
}

func (f *fixture) put(id, tier string, used int) Actor {
	f.repo.Put(account.Account{
		ID:          id,
		Email:       id + "@example.com",
		Tier:        tier,
		QueriesUsed: used,
	})
	return Actor{AccountID: id}
}

func TestBasisAccountRunsOutAtLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.put("a1", "basis", 49)

	decision, err := f.gate.Check(ctx, actor, ActionChat)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 49, decision.Used)
	assert.Equal(t, 50, decision.Limit)

	used, err := f.gate.Charge(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, 50, used)

	decision, err = f.gate.Check(ctx, actor, ActionChat)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonQuotaExceeded, decision.Reason)
	assert.Equal(t, entitlement.TierProfessional, decision.RequiredTier)
}

func TestNeverAllowsAtOrAboveBoundedLimit(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		tier string
		used int
	}{
		{"free", 5}, {"free", 6}, {"free_lawyer", 5},
		{"basis", 50}, {"mieter_plus", 51}, {"professional", 200},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.tier, tt.used), func(t *testing.T) {
			actor := f.put(fmt.Sprintf("acct-%d", i), tt.tier, tt.used)

			decision, err := f.gate.Check(context.Background(), actor, ActionChat)
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
			assert.Equal(t, ReasonQuotaExceeded, decision.Reason)
		})
	}
}

func TestUnboundedTierAlwaysAllowed(t *testing.T) {
	f := newFixture(t)

	for _, used := range []int{0, 200, 1_000_000} {
		actor := f.put(fmt.Sprintf("lawyer-%d", used), "lawyer", used)

		for action := range actionFeatures {
			decision, err := f.gate.Check(context.Background(), actor, action)
			require.NoError(t, err)
			assert.True(t, decision.Allowed, "%s at %d", action, used)
			assert.True(t, decision.Unbounded)
		}
	}
}

func TestOverriddenLawyerLimitIsEnforced(t *testing.T) {
	f := newFixture(t)
	f.repo.Put(account.Account{
		ID: "l1", Email: "l1@example.com", Tier: "lawyer",
		QueriesUsed: 10, QueriesLimit: 10, LimitOverridden: true,
	})

	decision, err := f.gate.Check(context.Background(), Actor{AccountID: "l1"}, ActionChat)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonQuotaExceeded, decision.Reason)
	assert.Empty(t, decision.RequiredTier)
}

func TestQuotaSuggestionCoversQueriesAlreadySpent(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		acct account.Account
		want entitlement.Tier
	}{
		{
			name: "free set past the basis budget",
			acct: account.Account{Tier: "free", QueriesUsed: 60},
			want: entitlement.TierProfessional,
		},
		{
			name: "basis override spent past professional",
			acct: account.Account{
				Tier: "basis", QueriesUsed: 250, QueriesLimit: 250, LimitOverridden: true,
			},
			want: entitlement.TierLawyer,
		},
		{
			name: "basis override below its catalog budget",
			acct: account.Account{
				Tier: "basis", QueriesUsed: 10, QueriesLimit: 10, LimitOverridden: true,
			},
			want: entitlement.TierProfessional,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.acct.ID = fmt.Sprintf("spent-%d", i)
			tt.acct.Email = tt.acct.ID + "@example.com"
			f.repo.Put(tt.acct)

			decision, err := f.gate.Check(context.Background(), Actor{AccountID: tt.acct.ID}, ActionChat)
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
			assert.Equal(t, ReasonQuotaExceeded, decision.Reason)
			assert.Equal(t, tt.want, decision.RequiredTier)
		})
	}
}

func TestFeatureGateNamesMinimalTier(t *testing.T) {
	f := newFixture(t)
	actor := f.put("free-1", "free", 0)

	tests := []struct {
		action Action
		want   entitlement.Tier
	}{
		{ActionDocumentAnalysis, entitlement.TierBasis},
		{ActionContractAnalysis, entitlement.TierProfessional},
		{ActionTemplateGeneration, entitlement.TierProfessional},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			decision, err := f.gate.Check(context.Background(), actor, tt.action)
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
			assert.Equal(t, ReasonTierUpgradeRequired, decision.Reason)
			assert.Equal(t, tt.want, decision.RequiredTier)
		})
	}
}

func TestQuotaAndFeatureBothMissing(t *testing.T) {
	f := newFixture(t)
	actor := f.put("free-1", "free", 5)

	decision, err := f.gate.Check(context.Background(), actor, ActionContractAnalysis)
	require.NoError(t, err)
	assert.Equal(t, ReasonQuotaExceeded, decision.Reason)
	assert.Equal(t, entitlement.TierProfessional, decision.RequiredTier)
}

func TestCheckDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	actor := f.put("a1", "basis", 3)

	for range 5 {
		_, err := f.gate.Check(context.Background(), actor, ActionChat)
		require.NoError(t, err)
	}

	stored, _ := f.repo.Snapshot("a1")
	assert.Equal(t, 3, stored.QueriesUsed)
	assert.Nil(t, stored.LastActivityAt)
}

func TestAnonymousBudgetThenRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visitor := Actor{Fingerprint: "device-fp"}

	for i := range 3 {
		decision, err := f.gate.Check(ctx, visitor, ActionChat)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "query %d", i+1)

		_, err = f.gate.Charge(ctx, visitor)
		require.NoError(t, err)
	}

	decision, err := f.gate.Check(ctx, visitor, ActionChat)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonRegisterRequired, decision.Reason)
	assert.Equal(t, 3, decision.Used)

	registered := f.put("new-user", "free", 0)
	registered.Fingerprint = visitor.Fingerprint

	decision, err = f.gate.Check(ctx, registered, ActionChat)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, decision.Used)
}

func TestAnonymousFeatureAndMissingFingerprint(t *testing.T) {
	f := newFixture(t)

	decision, err := f.gate.Check(context.Background(),
		Actor{Fingerprint: "fp"}, ActionDocumentAnalysis)
	require.NoError(t, err)
	assert.Equal(t, ReasonRegisterRequired, decision.Reason)
	assert.Equal(t, entitlement.TierBasis, decision.RequiredTier)

	decision, err = f.gate.Check(context.Background(), Actor{}, ActionChat)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonRegisterRequired, decision.Reason)
}

func TestAdminResetRestoresAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.put("a1", "basis", 50)

	decision, err := f.gate.Check(ctx, actor, ActionChat)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	stale := quota.Snapshot{Used: decision.Used, Limit: decision.Limit}
	require.False(t, stale.MayAttempt())

	_, err = f.ledger.Reset(ctx, "admin-1", "a1")
	require.NoError(t, err)

	usage, err := f.ledger.Get(ctx, "a1")
	require.NoError(t, err)
	stale.Reconcile(usage)
	assert.True(t, stale.MayAttempt())

	decision, err = f.gate.Check(ctx, actor, ActionChat)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestTestUserSuppressesUpgradePrompt(t *testing.T) {
	f := newFixture(t)
	f.repo.Put(account.Account{
		ID: "tester", Email: "t@example.com", Tier: "basis",
		QueriesUsed: 50, IsTestUser: true,
	})

	decision, err := f.gate.Check(context.Background(), Actor{AccountID: "tester"}, ActionChat)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.True(t, decision.SuppressUpgradePrompt)
}

func TestStorageFailureIsNeverAllow(t *testing.T) {
	f := newFixture(t)
	actor := f.put("a1", "basis", 0)
	f.repo.Err = fmt.Errorf("get account: %w", core.ErrStorageTimeout)

	decision, err := f.gate.Check(context.Background(), actor, ActionChat)
	assert.ErrorIs(t, err, core.ErrStorageTimeout)
	assert.False(t, decision.Allowed)
}

func TestUnknownActionRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Check(context.Background(), Actor{AccountID: "x"}, "teleport")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestRunChargesOnlyOnSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.put("a1", "basis", 10)

	_, err := f.gate.Run(ctx, actor, ActionChat, func(context.Context) error {
		return errors.New("ai backend down")
	})
	require.Error(t, err)
	stored, _ := f.repo.Snapshot("a1")
	assert.Equal(t, 10, stored.QueriesUsed)

	decision, err := f.gate.Run(ctx, actor, ActionChat, func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 11, decision.Used)
}

func TestRunDeniedSkipsAction(t *testing.T) {
	f := newFixture(t)
	actor := f.put("a1", "basis", 50)

	called := false
	_, err := f.gate.Run(context.Background(), actor, ActionChat, func(context.Context) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrTierUpgradeRequired)

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, entitlement.TierProfessional, denied.Decision.RequiredTier)
}

func TestRequireMiddleware(t *testing.T) {
	f := newFixture(t)
	f.put("a1", "basis", 49)

	status := http.StatusOK
	h := f.gate.Require(ActionChat)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/actions/chat", nil)
		req = req.WithContext(middleware.WithAccountID(req.Context(), "a1"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	status = http.StatusBadGateway
	assert.Equal(t, http.StatusBadGateway, serve().Code)
	stored, _ := f.repo.Snapshot("a1")
	assert.Equal(t, 49, stored.QueriesUsed, "failed action is not charged")

	status = http.StatusOK
	assert.Equal(t, http.StatusOK, serve().Code)
	stored, _ = f.repo.Snapshot("a1")
	assert.Equal(t, 50, stored.QueriesUsed)

	rec := serve()
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota_exceeded")
}
