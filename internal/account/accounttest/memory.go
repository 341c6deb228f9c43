// AngelaMos | 2026
// memory.go

// Package accounttest provides an in-memory account.Repository for tests.
package accounttest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/core"
)

type Repository struct {
	mu       sync.Mutex
	accounts map[string]account.Account
	now      func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

func NewRepository() *Repository {
	return &Repository{
		accounts: make(map[string]account.Account),
		now:      time.Now,
	}
}

// Put seeds an account as-is, filling timestamps when zero.
func (r *Repository) Put(acct account.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = r.now()
	}
	if acct.UpdatedAt.IsZero() {
		acct.UpdatedAt = acct.CreatedAt
	}
	r.accounts[acct.ID] = acct
}

// Snapshot returns a copy of the stored account, or false.
func (r *Repository) Snapshot(id string) (account.Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.accounts[id]
	return acct, ok
}

func (r *Repository) Create(_ context.Context, acct *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	for _, existing := range r.accounts {
		if existing.Email == acct.Email || existing.ID == acct.ID {
			return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
		}
	}

	acct.CreatedAt = r.now()
	acct.UpdatedAt = acct.CreatedAt
	r.accounts[acct.ID] = *acct
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*account.Account, error) {
	return r.find("get account", func(a account.Account) bool { return a.ID == id })
}

func (r *Repository) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	return r.find("get account by email", func(a account.Account) bool {
		return a.Email == email
	})
}

func (r *Repository) GetByStripeCustomerID(
	_ context.Context,
	customerID string,
) (*account.Account, error) {
	return r.find("get account by stripe customer", func(a account.Account) bool {
		return a.StripeCustomerID != nil && *a.StripeCustomerID == customerID
	})
}

func (r *Repository) find(
	op string,
	match func(account.Account) bool,
) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	for _, acct := range r.accounts {
		if match(acct) {
			return &acct, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
}

func (r *Repository) Update(_ context.Context, acct *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	stored, ok := r.accounts[acct.ID]
	if !ok {
		return fmt.Errorf("update account: %w", core.ErrNotFound)
	}

	stored.Name = acct.Name
	stored.Tier = acct.Tier
	stored.DashboardType = acct.DashboardType
	stored.QueriesLimit = acct.QueriesLimit
	stored.LimitOverridden = acct.LimitOverridden
	stored.IsAdmin = acct.IsAdmin
	stored.IsTestUser = acct.IsTestUser
	stored.StripeCustomerID = acct.StripeCustomerID
	stored.StripeSubscriptionID = acct.StripeSubscriptionID
	stored.PendingCheckoutID = acct.PendingCheckoutID
	stored.UpdatedAt = r.now()

	r.accounts[acct.ID] = stored
	acct.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *Repository) IncrementQueries(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}
	stored, ok := r.accounts[id]
	if !ok {
		return 0, fmt.Errorf("increment queries: %w", core.ErrNotFound)
	}

	now := r.now()
	stored.QueriesUsed++
	stored.LastActivityAt = &now
	r.accounts[id] = stored
	return stored.QueriesUsed, nil
}

func (r *Repository) SetQueries(_ context.Context, id string, value int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}
	stored, ok := r.accounts[id]
	if !ok {
		return 0, fmt.Errorf("set queries: %w", core.ErrNotFound)
	}

	previous := stored.QueriesUsed
	stored.QueriesUsed = value
	r.accounts[id] = stored
	return previous, nil
}

func (r *Repository) SetScheduledDeletion(
	_ context.Context,
	id string,
	at *time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	stored, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("set scheduled deletion: %w", core.ErrNotFound)
	}

	stored.ScheduledDeletionAt = at
	r.accounts[id] = stored
	return nil
}

func (r *Repository) ListByTierPrefix(
	_ context.Context,
	prefix string,
) ([]account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	var out []account.Account
	for _, acct := range r.accounts {
		if strings.HasPrefix(acct.Tier, prefix) {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) List(
	_ context.Context,
	params account.ListParams,
) ([]account.Account, int, error) {
	params.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return nil, 0, r.Err
	}
	var matched []account.Account
	for _, acct := range r.accounts {
		if params.Tier != "" && acct.Tier != params.Tier {
			continue
		}
		if params.Search != "" &&
			!strings.Contains(acct.Email, params.Search) &&
			!strings.Contains(acct.Name, params.Search) {
			continue
		}
		if params.ScheduledOnly && acct.ScheduledDeletionAt == nil {
			continue
		}
		matched = append(matched, acct)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := min(start+params.PageSize, total)
	return matched[start:end], total, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.accounts[id]; !ok {
		return fmt.Errorf("delete account: %w", core.ErrNotFound)
	}
	delete(r.accounts, id)
	return nil
}

var _ account.Repository = (*Repository)(nil)
