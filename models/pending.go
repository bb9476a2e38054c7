package models

import "time"

// PendingAnalysis is a priced request waiting for the user's yes/no reply
type PendingAnalysis struct {
	RequestID string       `json:"request_id"`
	UserID    string       `json:"user_id"`
	Symbol    string       `json:"symbol"`
	Question  string       `json:"question"`
	Prompt    string       `json:"prompt"`
	Estimate  CostEstimate `json:"estimate"`
	CreatedAt time.Time    `json:"created_at"`
}

// IsExpired reports whether the analysis is older than ttl.
// A zero ttl never expires.
func (p *PendingAnalysis) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(p.CreatedAt) > ttl
}
