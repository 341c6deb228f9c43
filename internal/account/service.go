// AngelaMos | 2026
// service.go

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/entitlement"
)

type Service struct {
	repo     Repository
	resolver *entitlement.Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

func NewService(
	repo Repository,
	resolver *entitlement.Resolver,
	timeout time.Duration,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *Service) Resolver() *entitlement.Resolver {
	return s.resolver
}

func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return core.BoundedValue(ctx, s.timeout, "get account",
		func(ctx context.Context) (*Account, error) {
			return s.repo.GetByID(ctx, id)
		})
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return core.BoundedValue(ctx, s.timeout, "get account by email",
		func(ctx context.Context) (*Account, error) {
			return s.repo.GetByEmail(ctx, normalizeEmail(email))
		})
}

func (s *Service) GetByStripeCustomerID(ctx context.Context, customerID string) (*Account, error) {
	return core.BoundedValue(ctx, s.timeout, "get account by stripe customer",
		func(ctx context.Context) (*Account, error) {
			return s.repo.GetByStripeCustomerID(ctx, customerID)
		})
}

// Resolve loads the account and derives its entitlement. An unknown stored
// tier is logged and degraded to free, never surfaced as an error.
func (s *Service) Resolve(
	ctx context.Context,
	id string,
) (*Account, entitlement.Entitlement, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, entitlement.Entitlement{}, err
	}

	return acct, s.Entitle(acct), nil
}

func (s *Service) Entitle(acct *Account) entitlement.Entitlement {
	ent, err := s.resolver.Resolve(acct.Record())
	if err != nil {
		var unknown *entitlement.UnknownTierError
		if errors.As(err, &unknown) {
			s.logger.Warn("unknown tier on account, using free limits",
				"account_id", acct.ID,
				"tier", unknown.Raw,
			)
		}
	}
	return ent
}

// IsAdmin satisfies middleware.AdminChecker.
func (s *Service) IsAdmin(ctx context.Context, id string) (bool, error) {
	_, ent, err := s.Resolve(ctx, id)
	if err != nil {
		return false, err
	}
	return ent.Admin, nil
}

// Create stores a new account. Callers set tier and limit; missing ids are
// generated here.
func (s *Service) Create(ctx context.Context, acct *Account) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	acct.Email = normalizeEmail(acct.Email)
	if acct.Email == "" {
		return fmt.Errorf("create account: email required: %w", core.ErrInvalidInput)
	}
	if acct.QueriesUsed < 0 || acct.QueriesLimit < 0 {
		return fmt.Errorf("create account: negative counter: %w", core.ErrInvalidInput)
	}

	return core.Bounded(ctx, s.timeout, "create account",
		func(ctx context.Context) error {
			return s.repo.Create(ctx, acct)
		})
}

func (s *Service) Update(ctx context.Context, acct *Account) error {
	return core.Bounded(ctx, s.timeout, "update account",
		func(ctx context.Context) error {
			return s.repo.Update(ctx, acct)
		})
}

func (s *Service) GetMe(ctx context.Context, id string) (*MeResponse, error) {
	if id == "" {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	acct, ent, err := s.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	return &MeResponse{
		Account:     ToAccountResponse(acct),
		Entitlement: ent,
	}, nil
}

func (s *Service) UpdateMe(
	ctx context.Context,
	id string,
	req UpdateMeRequest,
) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("update me: %w", core.ErrUnauthorized)
	}

	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		acct.Name = strings.TrimSpace(*req.Name)
	}

	if err := s.Update(ctx, acct); err != nil {
		return nil, err
	}

	return acct, nil
}

func (s *Service) List(
	ctx context.Context,
	params ListParams,
) ([]Account, int, error) {
	var (
		accounts []Account
		total    int
	)
	err := core.Bounded(ctx, s.timeout, "list accounts",
		func(ctx context.Context) error {
			var err error
			accounts, total, err = s.repo.List(ctx, params)
			return err
		})
	return accounts, total, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
