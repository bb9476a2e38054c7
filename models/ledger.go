package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry tracks one user's spend since the last daily reset
type LedgerEntry struct {
	UserID      string          `json:"user_id" db:"user_id"`
	DailyCost   decimal.Decimal `json:"daily_cost" db:"daily_cost"`
	LastResetAt time.Time       `json:"last_reset_at" db:"last_reset_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the LedgerEntry model
func (LedgerEntry) TableName() string {
	return "budget_ledger"
}

// NewLedgerEntry creates an empty entry whose day starts at now
func NewLedgerEntry(userID string, now time.Time) *LedgerEntry {
	return &LedgerEntry{
		UserID:      userID,
		DailyCost:   decimal.Zero,
		LastResetAt: now,
		UpdatedAt:   now,
	}
}
