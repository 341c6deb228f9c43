// AngelaMos | 2026
// repository.go

package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/legalquota/internal/account"
	"github.com/carterperez-dev/legalquota/internal/core"
	"github.com/carterperez-dev/legalquota/internal/notification"
)

type RequestRepository interface {
	Create(ctx context.Context, req *DeletionRequest) error
	GetByID(ctx context.Context, id string) (*DeletionRequest, error)
	GetPendingByAccount(ctx context.Context, accountID string) (*DeletionRequest, error)
	List(ctx context.Context, status RequestStatus, limit int) ([]DeletionRequest, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) error
}

type requestRepository struct {
	db core.DBTX
}

func NewRequestRepository(db core.DBTX) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *DeletionRequest) error {
	query := `
		INSERT INTO deletion_requests (id, account_id, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &req.CreatedAt, query,
		req.ID,
		req.AccountID,
		req.Reason,
		req.Status,
	)
	if err != nil {
		return fmt.Errorf("create deletion request: %w", err)
	}

	return nil
}

const requestColumns = `id, account_id, reason, status, created_at, completed_at`

func (r *requestRepository) GetByID(ctx context.Context, id string) (*DeletionRequest, error) {
	return r.getOne(ctx, "get deletion request",
		`SELECT `+requestColumns+` FROM deletion_requests WHERE id = $1`, id)
}

func (r *requestRepository) GetPendingByAccount(
	ctx context.Context,
	accountID string,
) (*DeletionRequest, error) {
	return r.getOne(ctx, "get pending deletion request",
		`SELECT `+requestColumns+` FROM deletion_requests
		WHERE account_id = $1 AND status = 'pending'
		ORDER BY created_at LIMIT 1`, accountID)
}

func (r *requestRepository) getOne(
	ctx context.Context,
	op string,
	query string,
	arg string,
) (*DeletionRequest, error) {
	var req DeletionRequest
	if err := r.db.GetContext(ctx, &req, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &req, nil
}

func (r *requestRepository) List(
	ctx context.Context,
	status RequestStatus,
	limit int,
) ([]DeletionRequest, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT ` + requestColumns + `
		FROM deletion_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at
		LIMIT $2`

	var out []DeletionRequest
	if err := r.db.SelectContext(ctx, &out, query, string(status), limit); err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}

	return out, nil
}

func (r *requestRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE deletion_requests
		SET status = 'completed', completed_at = $2
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("complete deletion request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete deletion request: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("complete deletion request: %w", core.ErrNotFound)
	}

	return nil
}

// Eraser removes an account and everything that belongs to it.
type Eraser interface {
	EraseAccount(ctx context.Context, accountID string) error
}

type sqlEraser struct {
	db *sqlx.DB
}

func NewEraser(db *sqlx.DB) Eraser {
	return &sqlEraser{db: db}
}

// EraseAccount deletes notifications and the account row in one transaction
// so a partial deletion is never visible.
func (e *sqlEraser) EraseAccount(ctx context.Context, accountID string) error {
	return core.InTx(ctx, e.db, func(tx *sqlx.Tx) error {
		if _, err := notification.NewRepository(tx).DeleteByAccount(ctx, accountID); err != nil {
			return err
		}
		return account.NewRepository(tx).Delete(ctx, accountID)
	})
}
