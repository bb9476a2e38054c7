package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, symbol, details, request_id, timestamp,
			model, input_tokens, output_tokens, estimated_cost, actual_cost, latency_ms, reason
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.Symbol,
		details,
		log.RequestID,
		log.Timestamp,
		log.Model,
		log.InputTokens,
		log.OutputTokens,
		log.EstimatedCost,
		log.ActualCost,
		log.LatencyMs,
		log.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// ListByUser retrieves audit logs for a user with pagination
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, action, symbol, details, request_id, timestamp,
		       model, input_tokens, output_tokens, estimated_cost, actual_cost, latency_ms, reason
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		var requestID sql.NullString
		var details []byte
		err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.Action,
			&log.Symbol,
			&details,
			&requestID,
			&log.Timestamp,
			&log.Model,
			&log.InputTokens,
			&log.OutputTokens,
			&log.EstimatedCost,
			&log.ActualCost,
			&log.LatencyMs,
			&log.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		log.Details = details
		log.RequestID = requestID.String
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}
