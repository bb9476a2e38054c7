package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"go.uber.org/zap"
)

// LedgerRepository implements the repositories.LedgerRepository interface
type LedgerRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB, logger *zap.Logger) repositories.LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a user's ledger entry. Inside a transaction the row is locked.
func (r *LedgerRepository) Get(ctx context.Context, userID string) (*models.LedgerEntry, error) {
	query := `
		SELECT user_id, daily_cost, last_reset_at, updated_at
		FROM budget_ledger
		WHERE user_id = $1
	`
	if _, inTx := ctx.Value(transactionContextKey{}).(*Transaction); inTx {
		query += " FOR UPDATE"
	}

	entry := &models.LedgerEntry{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(
		&entry.UserID,
		&entry.DailyCost,
		&entry.LastResetAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return entry, nil
}

// Save inserts or replaces a user's ledger entry
func (r *LedgerRepository) Save(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO budget_ledger (user_id, daily_cost, last_reset_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			daily_cost = EXCLUDED.daily_cost,
			last_reset_at = EXCLUDED.last_reset_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.UserID,
		entry.DailyCost,
		entry.LastResetAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save ledger entry: %w", err)
	}

	r.logger.Debug("ledger entry saved",
		zap.String("user_id", entry.UserID),
		zap.String("daily_cost", entry.DailyCost.String()))
	return nil
}
