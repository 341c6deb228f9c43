// AngelaMos | 2026
// repository_test.go

package account

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/legalquota/internal/core"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestIncrementQueriesIsSingleStatement(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`UPDATE accounts\s+SET queries_used = queries_used \+ 1`).
		WithArgs("acct-1").
		WillReturnRows(sqlmock.NewRows([]string{"queries_used"}).AddRow(50))

	used, err := repo.IncrementQueries(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 50, used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementQueriesMissingAccount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`UPDATE accounts`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.IncrementQueries(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSetQueriesReturnsPrevious(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`WITH prev AS .* FOR UPDATE`).
		WithArgs("acct-1", 0).
		WillReturnRows(sqlmock.NewRows([]string{"queries_used"}).AddRow(50))

	previous, err := repo.SetQueries(context.Background(), "acct-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 50, previous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO accounts`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &Account{
		ID:    "acct-1",
		Email: "dup@example.com",
		Tier:  "free",
	})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
}

func TestListByTierPrefixEscapesPattern(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "email", "name", "tier", "dashboard_type", "queries_used",
		"queries_limit", "limit_overridden", "is_admin", "is_test_user",
		"last_activity_at", "scheduled_deletion_at", "stripe_customer_id",
		"stripe_subscription_id", "pending_checkout_id", "created_at", "updated_at",
	}).AddRow(
		"acct-1", "a@example.com", "A", "free_basis", nil, 2,
		5, false, false, false,
		nil, nil, nil,
		nil, nil, now, now,
	)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE tier LIKE $1")).
		WithArgs("free%").
		WillReturnRows(rows)

	accounts, err := repo.ListByTierPrefix(context.Background(), "free")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "free_basis", accounts[0].Tier)
	assert.Nil(t, accounts[0].DashboardType)
}

func TestDeleteMissingAccount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`DELETE FROM accounts`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `free\_`, escapeLike("free_"))
	assert.Equal(t, `100\%`, escapeLike("100%"))
}
