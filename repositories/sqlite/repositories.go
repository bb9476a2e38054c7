package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/stockbot/models"
)

// LedgerRepository implements repositories.LedgerRepository
type LedgerRepository struct {
	store *Store
}

// Get returns the user's ledger entry, or nil
func (r *LedgerRepository) Get(ctx context.Context, userID string) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{}
	err := r.store.exec(ctx).QueryRowContext(ctx,
		`SELECT user_id, daily_cost, last_reset_at, updated_at FROM budget_ledger WHERE user_id = ?`,
		userID,
	).Scan(&entry.UserID, &entry.DailyCost, &entry.LastResetAt, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return entry, nil
}

// Save inserts or replaces the user's ledger entry
func (r *LedgerRepository) Save(ctx context.Context, entry *models.LedgerEntry) error {
	_, err := r.store.exec(ctx).ExecContext(ctx,
		`INSERT INTO budget_ledger (user_id, daily_cost, last_reset_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			daily_cost = excluded.daily_cost,
			last_reset_at = excluded.last_reset_at,
			updated_at = excluded.updated_at`,
		entry.UserID, entry.DailyCost.String(), entry.LastResetAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save ledger entry: %w", err)
	}
	return nil
}

// AccessRepository implements repositories.AccessRepository
type AccessRepository struct {
	store *Store
}

// Get returns the access entry for a user, or nil
func (r *AccessRepository) Get(ctx context.Context, userID string) (*models.AccessEntry, error) {
	entry := &models.AccessEntry{}
	err := r.store.exec(ctx).QueryRowContext(ctx,
		`SELECT user_id, role, granted_by, created_at FROM access_list WHERE user_id = ?`,
		userID,
	).Scan(&entry.UserID, &entry.Role, &entry.GrantedBy, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access entry: %w", err)
	}
	return entry, nil
}

// List returns every access entry ordered by user id
func (r *AccessRepository) List(ctx context.Context) ([]*models.AccessEntry, error) {
	rows, err := r.store.exec(ctx).QueryContext(ctx,
		`SELECT user_id, role, granted_by, created_at FROM access_list ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list access entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AccessEntry
	for rows.Next() {
		entry := &models.AccessEntry{}
		if err := rows.Scan(&entry.UserID, &entry.Role, &entry.GrantedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan access entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Upsert inserts an entry or updates its role
func (r *AccessRepository) Upsert(ctx context.Context, entry *models.AccessEntry) error {
	_, err := r.store.exec(ctx).ExecContext(ctx,
		`INSERT INTO access_list (user_id, role, granted_by, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET role = excluded.role`,
		entry.UserID, string(entry.Role), entry.GrantedBy, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert access entry: %w", err)
	}
	return nil
}

// Delete removes a user and reports whether a row existed
func (r *AccessRepository) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := r.store.exec(ctx).ExecContext(ctx, `DELETE FROM access_list WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete access entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AuditRepository implements repositories.AuditRepository
type AuditRepository struct {
	store *Store
}

// Insert stores an audit entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	var details []byte
	if len(log.Details) > 0 {
		details = log.Details
	}
	_, err := r.store.exec(ctx).ExecContext(ctx,
		`INSERT INTO audit_logs (
			id, user_id, action, symbol, details, request_id, timestamp,
			model, input_tokens, output_tokens, estimated_cost, actual_cost, latency_ms, reason
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID.String(), log.UserID, string(log.Action), log.Symbol, details, log.RequestID, log.Timestamp,
		log.Model, log.InputTokens, log.OutputTokens, log.EstimatedCost, log.ActualCost, log.LatencyMs, log.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByUser returns a user's audit entries, newest first
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	rows, err := r.store.exec(ctx).QueryContext(ctx,
		`SELECT id, user_id, action, symbol, details, request_id, timestamp,
			model, input_tokens, output_tokens, estimated_cost, actual_cost, latency_ms, reason
		 FROM audit_logs WHERE user_id = ?
		 ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		var details []byte
		if err := rows.Scan(
			&log.ID, &log.UserID, &log.Action, &log.Symbol, &details, &log.RequestID, &log.Timestamp,
			&log.Model, &log.InputTokens, &log.OutputTokens, &log.EstimatedCost, &log.ActualCost, &log.LatencyMs, &log.Reason,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		log.Details = details
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
