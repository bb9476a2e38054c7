package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Alias tests
func TestNormalizeAlias(t *testing.T) {
	alias := NormalizeAlias("  Bank Leumi ", " lumi.ta ")

	assert.Equal(t, "bank leumi", alias.Name)
	assert.Equal(t, "LUMI.TA", alias.Symbol)
}

func TestNormalizeAlias_Hebrew(t *testing.T) {
	alias := NormalizeAlias("אפל", "aapl")

	assert.Equal(t, "אפל", alias.Name)
	assert.Equal(t, "AAPL", alias.Symbol)
}

// AccessEntry tests
func TestAccessEntry_IsAdmin(t *testing.T) {
	assert.True(t, (&AccessEntry{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&AccessEntry{Role: RoleUser}).IsAdmin())
}

func TestAccessEntry_TableName(t *testing.T) {
	assert.Equal(t, "access_list", AccessEntry{}.TableName())
}

// CostEstimate tests
func TestNewCostEstimate(t *testing.T) {
	est := NewCostEstimate("gpt-4", 2000, 1000, dec("0.06"), dec("0.06"))

	assert.Equal(t, "gpt-4", est.Model)
	assert.Equal(t, 3000, est.TotalTokens())
	assert.True(t, est.TotalCost.Equal(dec("0.12")))
}

func TestNewCostEstimate_NoRounding(t *testing.T) {
	est := NewCostEstimate("gpt-4o-mini", 7, 3, dec("0.00000105"), dec("0.0000018"))

	assert.Equal(t, "0.00000285", est.TotalCost.String())
}

func TestCostEstimate_JSON(t *testing.T) {
	est := NewCostEstimate("gpt-4", 10, 5, dec("0.0003"), dec("0.0003"))

	data, err := json.Marshal(est)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model":"gpt-4",
		"input_tokens":10,
		"output_tokens":5,
		"input_cost":"0.0003",
		"output_cost":"0.0003",
		"total_cost":"0.0006"
	}`, string(data))
}

// LedgerEntry tests
func TestNewLedgerEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entry := NewLedgerEntry("42", now)

	assert.Equal(t, "42", entry.UserID)
	assert.True(t, entry.DailyCost.IsZero())
	assert.Equal(t, now, entry.LastResetAt)
	assert.Equal(t, now, entry.UpdatedAt)
}

func TestLedgerEntry_TableName(t *testing.T) {
	assert.Equal(t, "budget_ledger", LedgerEntry{}.TableName())
}

// PendingAnalysis tests
func TestPendingAnalysis_IsExpired(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	pending := &PendingAnalysis{CreatedAt: created}

	tests := []struct {
		name     string
		now      time.Time
		ttl      time.Duration
		expected bool
	}{
		{"zero ttl never expires", created.Add(48 * time.Hour), 0, false},
		{"within ttl", created.Add(4 * time.Minute), 5 * time.Minute, false},
		{"exactly at ttl", created.Add(5 * time.Minute), 5 * time.Minute, false},
		{"past ttl", created.Add(6 * time.Minute), 5 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, pending.IsExpired(tt.now, tt.ttl))
		})
	}
}

// AuditLog tests
func TestNewAuditLog(t *testing.T) {
	log := NewAuditLog("42", AuditActionEstimated)

	assert.NotEmpty(t, log.ID)
	assert.Equal(t, "42", log.UserID)
	assert.Equal(t, AuditActionEstimated, log.Action)
	assert.False(t, log.Timestamp.IsZero())
	assert.Nil(t, log.Symbol)
}

func TestAuditLog_BuilderMethods(t *testing.T) {
	est := NewCostEstimate("gpt-4", 2000, 1000, dec("0.06"), dec("0.06"))
	actual := NewCostEstimate("gpt-4", 900, 300, dec("0.027"), dec("0.018"))

	log := NewAuditLog("42", AuditActionExecuted).
		WithSymbol("AAPL").
		WithRequest("req-123").
		WithEstimate(est).
		WithActual(actual, 1500).
		WithReason("done").
		WithDetails(map[string]interface{}{"key": "value"})

	assert.Equal(t, "AAPL", *log.Symbol)
	assert.Equal(t, "req-123", log.RequestID)
	assert.Equal(t, "gpt-4", *log.Model)
	assert.Equal(t, 900, *log.InputTokens)
	assert.Equal(t, 300, *log.OutputTokens)
	assert.True(t, log.EstimatedCost.Equal(dec("0.12")))
	assert.True(t, log.ActualCost.Equal(dec("0.045")))
	assert.Equal(t, 1500, *log.LatencyMs)
	assert.Equal(t, "done", *log.Reason)
	assert.JSONEq(t, `{"key":"value"}`, string(log.Details))
}

func TestAuditLog_EmptyOptionalsStayNil(t *testing.T) {
	log := NewAuditLog("42", AuditActionDenied).WithSymbol("").WithReason("")

	assert.Nil(t, log.Symbol)
	assert.Nil(t, log.Reason)
}

func TestAuditLog_TableName(t *testing.T) {
	assert.Equal(t, "audit_logs", AuditLog{}.TableName())
}
