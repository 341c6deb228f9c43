// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carterperez-dev/legalquota/internal/core"
)

type Repository interface {
	Create(ctx context.Context, acct *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*Account, error)
	Update(ctx context.Context, acct *Account) error
	IncrementQueries(ctx context.Context, id string) (int, error)
	SetQueries(ctx context.Context, id string, value int) (int, error)
	SetScheduledDeletion(ctx context.Context, id string, at *time.Time) error
	ListByTierPrefix(ctx context.Context, prefix string) ([]Account, error)
	List(ctx context.Context, params ListParams) ([]Account, int, error)
	Delete(ctx context.Context, id string) error
}

const accountColumns = `
	id, email, name, tier, dashboard_type, queries_used, queries_limit,
	limit_overridden, is_admin, is_test_user, last_activity_at,
	scheduled_deletion_at, stripe_customer_id, stripe_subscription_id,
	pending_checkout_id, created_at, updated_at`

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, acct *Account) error {
	query := `
		INSERT INTO accounts (
			id, email, name, tier, dashboard_type, queries_used, queries_limit,
			limit_overridden, is_admin, is_test_user, stripe_customer_id,
			pending_checkout_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	err := r.db.GetContext(ctx, acct, query,
		acct.ID,
		acct.Email,
		acct.Name,
		acct.Tier,
		acct.DashboardType,
		acct.QueriesUsed,
		acct.QueriesLimit,
		acct.LimitOverridden,
		acct.IsAdmin,
		acct.IsTestUser,
		acct.StripeCustomerID,
		acct.PendingCheckoutID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.getOne(ctx, "get account", "id = $1", id)
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*Account, error) {
	return r.getOne(ctx, "get account by email", "email = $1", email)
}

func (r *repository) GetByStripeCustomerID(
	ctx context.Context,
	customerID string,
) (*Account, error) {
	return r.getOne(
		ctx,
		"get account by stripe customer",
		"stripe_customer_id = $1",
		customerID,
	)
}

func (r *repository) getOne(
	ctx context.Context,
	op, where string,
	arg any,
) (*Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE " + where

	var acct Account
	err := r.db.GetContext(ctx, &acct, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &acct, nil
}

// Update writes the operator-mutable columns. queries_used and
// scheduled_deletion_at have dedicated writers and are left untouched.
func (r *repository) Update(ctx context.Context, acct *Account) error {
	query := `
		UPDATE accounts
		SET name = $2, tier = $3, dashboard_type = $4, queries_limit = $5,
		    limit_overridden = $6, is_admin = $7, is_test_user = $8,
		    stripe_customer_id = $9, stripe_subscription_id = $10,
		    pending_checkout_id = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.GetContext(ctx, &acct.UpdatedAt, query,
		acct.ID,
		acct.Name,
		acct.Tier,
		acct.DashboardType,
		acct.QueriesLimit,
		acct.LimitOverridden,
		acct.IsAdmin,
		acct.IsTestUser,
		acct.StripeCustomerID,
		acct.StripeSubscriptionID,
		acct.PendingCheckoutID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update account: %w", core.ErrNotFound)
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("update account: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("update account: %w", err)
	}

	return nil
}

// IncrementQueries is a single-statement atomic increment; concurrent callers
// are serialised by the row lock and each one is counted.
func (r *repository) IncrementQueries(
	ctx context.Context,
	id string,
) (int, error) {
	query := `
		UPDATE accounts
		SET queries_used = queries_used + 1,
		    last_activity_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING queries_used`

	var used int
	err := r.db.GetContext(ctx, &used, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment queries: %w", core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment queries: %w", err)
	}

	return used, nil
}

// SetQueries overwrites the counter and returns the value it replaced.
func (r *repository) SetQueries(
	ctx context.Context,
	id string,
	value int,
) (int, error) {
	query := `
		WITH prev AS (
			SELECT id, queries_used FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts
		SET queries_used = $2, updated_at = NOW()
		FROM prev
		WHERE accounts.id = prev.id
		RETURNING prev.queries_used`

	var previous int
	err := r.db.GetContext(ctx, &previous, query, id, value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("set queries: %w", core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("set queries: %w", err)
	}

	return previous, nil
}

func (r *repository) SetScheduledDeletion(
	ctx context.Context,
	id string,
	at *time.Time,
) error {
	query := `
		UPDATE accounts
		SET scheduled_deletion_at = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("set scheduled deletion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set scheduled deletion: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("set scheduled deletion: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) ListByTierPrefix(
	ctx context.Context,
	prefix string,
) ([]Account, error) {
	query := "SELECT " + accountColumns + `
		FROM accounts
		WHERE tier LIKE $1
		ORDER BY created_at`

	var accounts []Account
	if err := r.db.SelectContext(ctx, &accounts, query, escapeLike(prefix)+"%"); err != nil {
		return nil, fmt.Errorf("list accounts by tier prefix: %w", err)
	}

	return accounts, nil
}

func (r *repository) List(
	ctx context.Context,
	params ListParams,
) ([]Account, int, error) {
	params.Normalize()

	conditions := []string{"TRUE"}
	var args []any
	argIdx := 1

	if params.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(email ILIKE $%d OR name ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+escapeLike(params.Search)+"%")
		argIdx++
	}

	if params.Tier != "" {
		conditions = append(conditions, fmt.Sprintf("tier = $%d", argIdx))
		args = append(args, params.Tier)
		argIdx++
	}

	if params.ScheduledOnly {
		conditions = append(conditions, "scheduled_deletion_at IS NOT NULL")
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(
		"SELECT COUNT(*) FROM accounts WHERE %s",
		whereClause,
	)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM accounts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		accountColumns, whereClause, argIdx, argIdx+1)

	args = append(args, params.PageSize, params.Offset())

	var accounts []Account
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	return accounts, total, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("delete account: %w", core.ErrNotFound)
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
