package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

func TestLedgerRepository_Get(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("returns nil when the user has no row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM budget_ledger")).
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "daily_cost", "last_reset_at", "updated_at"}))

		entry, err := repo.Get(ctx, "42")
		require.NoError(t, err)
		assert.Nil(t, entry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scans an existing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM budget_ledger")).
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "daily_cost", "last_reset_at", "updated_at"}).
				AddRow("42", "0.95", now, now))

		entry, err := repo.Get(ctx, "42")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "42", entry.UserID)
		assert.True(t, entry.DailyCost.Equal(decimal.RequireFromString("0.95")))
		assert.True(t, entry.LastResetAt.Equal(now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates query errors", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewLedgerRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM budget_ledger")).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.Get(ctx, "42")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get ledger entry")
	})
}

func TestLedgerRepository_SaveInTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLedgerRepository(db, zap.NewNop())
	txMgr := NewTransactionManager(db, zap.NewNop())
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "daily_cost", "last_reset_at", "updated_at"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO budget_ledger")).
		WithArgs("7", sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := txMgr.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
		entry, err := repo.Get(ctx, "7")
		if err != nil {
			return err
		}
		if entry == nil {
			entry = models.NewLedgerEntry("7", now)
		}
		entry.DailyCost = entry.DailyCost.Add(decimal.RequireFromString("0.08"))
		return repo.Save(ctx, entry)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	txMgr := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := txMgr.InTransaction(context.Background(), func(ctx context.Context, _ repositories.Transaction) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExecutor(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()

	tx, err := NewTransactionManager(db, zap.NewNop()).Begin(context.Background())
	require.NoError(t, err)

	assert.Equal(t, db.DB, GetExecutor(context.Background(), db))
	assert.Equal(t, tx.(*Transaction).tx, GetExecutor(tx.Context(), db))
}

func TestAccessRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	columns := []string{"user_id", "role", "granted_by", "created_at"}

	t.Run("get maps null granted_by to empty", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccessRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM access_list")).
			WithArgs("1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("1", "admin", nil, now))

		entry, err := repo.Get(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, entry.IsAdmin())
		assert.Empty(t, entry.GrantedBy)
	})

	t.Run("list returns rows in order", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccessRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY user_id")).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("1", "admin", nil, now).
				AddRow("2", "user", "1", now))

		entries, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "1", entries[1].GrantedBy)
		assert.Equal(t, models.RoleUser, entries[1].Role)
	})

	t.Run("upsert", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccessRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO access_list")).
			WithArgs("2", "user", "1", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(ctx, &models.AccessEntry{UserID: "2", Role: models.RoleUser, GrantedBy: "1", CreatedAt: now})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete reports whether a row existed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccessRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM access_list")).
			WithArgs("2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM access_list")).
			WithArgs("3").
			WillReturnResult(sqlmock.NewResult(0, 0))

		removed, err := repo.Delete(ctx, "2")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.Delete(ctx, "3")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestAuditRepository_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepository(db, zap.NewNop())

	log := models.NewAuditLog("42", models.AuditActionDenied).
		WithSymbol("AAPL").
		WithReason("daily_ceiling_exceeded")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), log))
	assert.NoError(t, mock.ExpectationsWereMet())
}
