// AngelaMos | 2026
// service_test.go

package admin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/account/accounttest"
	"github.com/carterperez-dev/legalquota/internal/admin"
	"github.com/carterperez-dev/legalquota/internal/audit"
	"github.com/carterperez-dev/legalquota/internal/billing"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
	"github.com/carterperez-dev/legalquota/internal/outbox"
	"github.com/carterperez-dev/legalquota/internal/quota"
)

type fakeCheckout struct {
	calls int
	err   error
}

func (f *fakeCheckout) StartCheckout(
	_ context.Context,
	acct *account.Account,
	tier entitlement.Tier,
) (billing.Session, error) {
	f.calls++
	if f.err != nil {
		return billing.Session{}, f.err
	}
	id := "cs_" + string(tier)
	acct.PendingCheckoutID = &id
	return billing.Session{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

type fakeClearer struct {
	cleared []string
}

func (f *fakeClearer) Clear(_ context.Context, fingerprint string) error {
	f.cleared = append(f.cleared, fingerprint)
	return nil
}

type fixture struct {
	svc      *admin.Service
	repo     *accounttest.Repository
	accounts *account.Service
	events   *outbox.MemoryRepository
	audit    *audit.MemoryRepository
	checkout *fakeCheckout
	clearer  *fakeClearer
	root     audit.Op
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := accounttest.NewRepository()
	repo.Put(account.Account{ID: "root", Email: "root@example.com", Tier: "lawyer"})
	repo.Put(account.Account{ID: "staff", Email: "staff@example.com", Tier: "free", IsAdmin: true})
	repo.Put(account.Account{ID: "user", Email: "user@example.com", Name: "Uma", Tier: "free", QueriesLimit: 5, QueriesUsed: 5})

	resolver := entitlement.NewResolver(entitlement.NewCatalog(), []string{"root@example.com"})
	accounts := account.NewService(repo, resolver, time.Second, nil)

	auditRepo := audit.NewMemoryRepository()
	recorder := audit.NewRecorder(auditRepo, time.Second, nil)
	ledger := quota.NewLedger(repo, resolver, recorder, quota.LedgerConfig{Timeout: time.Second})

	events := outbox.NewMemoryRepository()
	checkout := &fakeCheckout{}
	clearer := &fakeClearer{}

	svc := admin.NewService(
		accounts,
		ledger,
		outbox.NewEmitter(events, time.Second, nil),
		recorder,
		checkout,
		clearer,
		nil,
	)

	return &fixture{
		svc:      svc,
		repo:     repo,
		accounts: accounts,
		events:   events,
		audit:    auditRepo,
		checkout: checkout,
		clearer:  clearer,
		root:     audit.Op{Actor: "root", Token: "op-1"},
	}
}

func (f *fixture) stored(t *testing.T, id string) account.Account {
	t.Helper()
	acct, ok := f.repo.Snapshot(id)
	require.True(t, ok, id)
	return acct
}

func (f *fixture) actions() []string {
	var out []string
	for _, e := range f.audit.All() {
		out = append(out, e.Action)
	}
	return out
}

func TestRevokeAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RevokeAdmin(ctx, f.root, "root")
	var protected *admin.ProtectedAdminError
	require.ErrorAs(t, err, &protected)
	assert.Equal(t, "root@example.com", protected.Email)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, ent, err := f.accounts.Resolve(ctx, "root")
	require.NoError(t, err)
	assert.True(t, ent.Admin, "allow-listed identity keeps admin")

	acct, err := f.svc.RevokeAdmin(ctx, f.root, "staff")
	require.NoError(t, err)
	assert.False(t, acct.IsAdmin)

	_, ent, err = f.accounts.Resolve(ctx, "staff")
	require.NoError(t, err)
	assert.False(t, ent.Admin)

	assert.Equal(t, []string{audit.ActionRevokeAdmin}, f.actions())
}

func TestGrantAdminIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantAdmin(ctx, f.root, "user")
	require.NoError(t, err)
	_, err = f.svc.GrantAdmin(ctx, f.root, "user")
	require.NoError(t, err)

	assert.True(t, f.stored(t, "user").IsAdmin)
	assert.Len(t, f.audit.All(), 1)
}

func TestOperatorMustBeAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChangeTier(ctx, audit.Op{Actor: "user"}, "user", "lawyer")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.ChangeTier(ctx, audit.Op{Actor: "ghost"}, "user", "lawyer")
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.ChangeTier(ctx, audit.Op{}, "user", "lawyer")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	assert.Equal(t, "free", f.stored(t, "user").Tier)
	assert.Empty(t, f.events.Events())
}

func TestChangeTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetQueryLimit(ctx, f.root, "user", 1000)
	require.NoError(t, err)

	acct, err := f.svc.ChangeTier(ctx, f.root, "user", "professional")
	require.NoError(t, err)
	assert.Equal(t, "professional", acct.Tier)

	stored := f.stored(t, "user")
	assert.Equal(t, 200, stored.QueriesLimit)
	assert.False(t, stored.LimitOverridden, "tier change clears the override")
	assert.Equal(t, 5, stored.QueriesUsed, "tier change leaves the counter alone")

	events := f.events.ForAccount("user")
	require.Len(t, events, 1)
	assert.Equal(t, outbox.KindTierChanged, events[0].Kind)
	assert.Equal(t, "user@example.com", events[0].Recipient)
	assert.Equal(t, outbox.Params{
		"old_tier": "free",
		"new_tier": "professional",
		"limit":    "200",
		"name":     "Uma",
	}, events[0].Params)

	_, err = f.svc.ChangeTier(ctx, f.root, "user", "professional")
	require.NoError(t, err)
	assert.Len(t, f.events.ForAccount("user"), 1, "same tier again is a no-op")

	_, err = f.svc.ChangeTier(ctx, f.root, "user", "platinum")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestChangeTierRetryWithSameTokenEmitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChangeTier(ctx, f.root, "user", "lawyer")
	require.NoError(t, err)

	// simulate a retry after the write landed but the caller saw a timeout
	f.repo.Put(account.Account{ID: "user", Email: "user@example.com", Name: "Uma", Tier: "free", QueriesLimit: 5})
	_, err = f.svc.ChangeTier(ctx, f.root, "user", "lawyer")
	require.NoError(t, err)

	events := f.events.ForAccount("user")
	require.Len(t, events, 1)
	assert.Equal(t, "unlimited", events[0].Params["limit"])
}

func TestSetAndResetQueryCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	usage, err := f.svc.SetQueryCount(ctx, f.root, "user", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Used)
	assert.Equal(t, 3, usage.Remaining())

	usage, err = f.svc.ResetQueryCount(ctx, f.root, "user")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)

	_, err = f.svc.SetQueryCount(ctx, f.root, "user", -1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	entries := f.audit.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "5", entries[0].OldValue)
	assert.Equal(t, "root", entries[0].ActorID)
	assert.Equal(t, audit.ActionResetQueries, entries[1].Action)
}

func TestQueryLimitOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetQueryLimit(ctx, f.root, "user", 20)
	require.NoError(t, err)

	_, ent, err := f.accounts.Resolve(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, 20, ent.QueryLimit)
	assert.True(t, ent.LimitOverridden)

	_, err = f.svc.ClearQueryLimit(ctx, f.root, "user")
	require.NoError(t, err)

	stored := f.stored(t, "user")
	assert.False(t, stored.LimitOverridden)
	assert.Equal(t, 5, stored.QueriesLimit)

	_, err = f.svc.SetQueryLimit(ctx, f.root, "user", -5)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestProvisionComped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.ProvisionAccount(ctx, f.root, admin.ProvisionRequest{
		Email:  "Partner@Example.com",
		Name:   "Partner",
		Tier:   "professional",
		Comped: true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.CheckoutURL)
	assert.Equal(t, 0, f.checkout.calls)

	stored := f.stored(t, result.Account.ID)
	assert.Equal(t, "professional", stored.Tier)
	assert.True(t, stored.IsTestUser)
	assert.Equal(t, 200, stored.QueriesLimit)

	events := f.events.ForAccount(stored.ID)
	require.Len(t, events, 1)
	assert.Equal(t, "", events[0].Params["checkout_url"])
	assert.Contains(t, f.actions(), audit.ActionProvision)
}

func TestProvisionPaying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.ProvisionAccount(ctx, f.root, admin.ProvisionRequest{
		Email: "client@example.com",
		Tier:  "basis",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/cs_basis", result.CheckoutURL)
	assert.True(t, result.Account.PendingCheckout)

	stored := f.stored(t, result.Account.ID)
	assert.Equal(t, "free_basis", stored.Tier)
	assert.False(t, stored.IsTestUser)

	ent := f.accounts.Entitle(&stored)
	assert.Equal(t, entitlement.TierFree, ent.Tier)
	assert.Equal(t, entitlement.TierBasis, ent.DeclaredTarget)

	events := f.events.ForAccount(stored.ID)
	require.Len(t, events, 1)
	assert.Equal(t, result.CheckoutURL, events[0].Params["checkout_url"])
}

func TestProvisionPayingSurvivesCheckoutFailure(t *testing.T) {
	f := newFixture(t)
	f.checkout.err = errors.New("provider down")

	result, err := f.svc.ProvisionAccount(context.Background(), f.root, admin.ProvisionRequest{
		Email: "client@example.com",
		Tier:  "lawyer",
	})
	require.NoError(t, err)
	assert.Empty(t, result.CheckoutURL)
	assert.Equal(t, "free_lawyer", f.stored(t, result.Account.ID).Tier)
}

func TestReconcileSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := "cs_basis"
	f.repo.Put(account.Account{
		ID:                "payer",
		Email:             "payer@example.com",
		Tier:              "free_basis",
		QueriesLimit:      5,
		PendingCheckoutID: &pending,
	})

	change := billing.Change{
		EventID:        "evt_1",
		AccountID:      "payer",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Tier:           entitlement.TierBasis,
	}
	require.NoError(t, f.svc.ReconcileSubscription(ctx, change))
	require.NoError(t, f.svc.ReconcileSubscription(ctx, change))

	stored := f.stored(t, "payer")
	assert.Equal(t, "basis", stored.Tier)
	assert.Equal(t, 50, stored.QueriesLimit)
	assert.Nil(t, stored.PendingCheckoutID)
	require.NotNil(t, stored.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *stored.StripeSubscriptionID)
	assert.Len(t, f.events.ForAccount("payer"), 1)

	entries := f.audit.All()
	require.Len(t, entries, 1)
	assert.Equal(t, billing.SystemActor, entries[0].ActorID)

	err := f.svc.ReconcileSubscription(ctx, billing.Change{
		EventID:    "evt_2",
		CustomerID: "cus_1",
		Tier:       entitlement.TierFree,
	})
	require.NoError(t, err)

	stored = f.stored(t, "payer")
	assert.Equal(t, "free", stored.Tier)
	assert.Nil(t, stored.StripeSubscriptionID)
	assert.Len(t, f.events.ForAccount("payer"), 2)

	err = f.svc.ReconcileSubscription(ctx, billing.Change{EventID: "evt_3", Tier: entitlement.TierFree})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestClearAnonymousKeepsFingerprintOutOfAudit(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.ClearAnonymous(context.Background(), f.root, "fp-secret"))
	assert.Equal(t, []string{"fp-secret"}, f.clearer.cleared)

	for _, e := range f.audit.All() {
		assert.NotContains(t, e.TargetID+e.OldValue+e.NewValue, "fp-secret")
	}

	err := f.svc.ClearAnonymous(context.Background(), f.root, " ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
