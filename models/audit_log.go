package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionEstimated    AuditAction = "analysis_estimated"
	AuditActionDenied       AuditAction = "analysis_denied"
	AuditActionCancelled    AuditAction = "analysis_cancelled"
	AuditActionExecuted     AuditAction = "analysis_executed"
	AuditActionFailed       AuditAction = "analysis_failed"
	AuditActionNoPending    AuditAction = "confirmation_without_pending"
	AuditActionAccessGrant  AuditAction = "access_granted"
	AuditActionAccessRevoke AuditAction = "access_revoked"
	AuditActionAliasAdded   AuditAction = "alias_added"
	AuditActionAliasRemoved AuditAction = "alias_removed"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Action    AuditAction     `json:"action" db:"action"`
	Symbol    *string         `json:"symbol,omitempty" db:"symbol"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	RequestID string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`

	// Cost fields
	Model         *string          `json:"model,omitempty" db:"model"`
	InputTokens   *int             `json:"input_tokens,omitempty" db:"input_tokens"`
	OutputTokens  *int             `json:"output_tokens,omitempty" db:"output_tokens"`
	EstimatedCost *decimal.Decimal `json:"estimated_cost,omitempty" db:"estimated_cost"`
	ActualCost    *decimal.Decimal `json:"actual_cost,omitempty" db:"actual_cost"`
	LatencyMs     *int             `json:"latency_ms,omitempty" db:"latency_ms"`
	Reason        *string          `json:"reason,omitempty" db:"reason"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(userID string, action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// WithSymbol sets the ticker symbol
func (a *AuditLog) WithSymbol(symbol string) *AuditLog {
	if symbol != "" {
		a.Symbol = &symbol
	}
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets the correlating request id
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}

// WithEstimate records the pre-call estimate
func (a *AuditLog) WithEstimate(est CostEstimate) *AuditLog {
	model := est.Model
	in, out := est.InputTokens, est.OutputTokens
	total := est.TotalCost
	a.Model = &model
	a.InputTokens = &in
	a.OutputTokens = &out
	a.EstimatedCost = &total
	return a
}

// WithActual records the provider-reported usage and its price
func (a *AuditLog) WithActual(actual CostEstimate, latencyMs int) *AuditLog {
	model := actual.Model
	in, out := actual.InputTokens, actual.OutputTokens
	total := actual.TotalCost
	a.Model = &model
	a.InputTokens = &in
	a.OutputTokens = &out
	a.ActualCost = &total
	a.LatencyMs = &latencyMs
	return a
}

// WithReason sets the denial or failure reason
func (a *AuditLog) WithReason(reason string) *AuditLog {
	if reason != "" {
		a.Reason = &reason
	}
	return a
}
