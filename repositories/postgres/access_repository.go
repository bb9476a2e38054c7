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

// AccessRepository implements the repositories.AccessRepository interface
type AccessRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAccessRepository creates a new access repository
func NewAccessRepository(db *DB, logger *zap.Logger) repositories.AccessRepository {
	return &AccessRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the access entry for a user
func (r *AccessRepository) Get(ctx context.Context, userID string) (*models.AccessEntry, error) {
	query := `
		SELECT user_id, role, granted_by, created_at
		FROM access_list
		WHERE user_id = $1
	`

	entry, err := scanAccessEntry(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get access entry: %w", err)
	}
	return entry, nil
}

// List retrieves every access entry
func (r *AccessRepository) List(ctx context.Context) ([]*models.AccessEntry, error) {
	query := `
		SELECT user_id, role, granted_by, created_at
		FROM access_list
		ORDER BY user_id
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list access entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AccessEntry
	for rows.Next() {
		entry, err := scanAccessEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access rows: %w", err)
	}
	return entries, nil
}

// Upsert inserts an entry or updates its role
func (r *AccessRepository) Upsert(ctx context.Context, entry *models.AccessEntry) error {
	query := `
		INSERT INTO access_list (user_id, role, granted_by, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.UserID,
		entry.Role,
		nullString(entry.GrantedBy),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert access entry: %w", err)
	}

	r.logger.Debug("access entry upserted",
		zap.String("user_id", entry.UserID),
		zap.String("role", string(entry.Role)))
	return nil
}

// Delete removes a user from the access list
func (r *AccessRepository) Delete(ctx context.Context, userID string) (bool, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM access_list WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete access entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccessEntry(row rowScanner) (*models.AccessEntry, error) {
	entry := &models.AccessEntry{}
	var grantedBy sql.NullString
	if err := row.Scan(&entry.UserID, &entry.Role, &grantedBy, &entry.CreatedAt); err != nil {
		return nil, err
	}
	entry.GrantedBy = grantedBy.String
	return entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
