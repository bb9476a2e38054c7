package models

import (
	"github.com/shopspring/decimal"
)

// CostEstimate is an immutable priced token count for one completion call.
// TotalCost is always InputCost + OutputCost with no rounding applied.
type CostEstimate struct {
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	InputCost    decimal.Decimal `json:"input_cost"`
	OutputCost   decimal.Decimal `json:"output_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// NewCostEstimate builds an estimate and derives its total
func NewCostEstimate(model string, inputTokens, outputTokens int, inputCost, outputCost decimal.Decimal) CostEstimate {
	return CostEstimate{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    inputCost.Add(outputCost),
	}
}

// TotalTokens returns the sum of input and output tokens
func (c CostEstimate) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// ModelPrice is the per-thousand-token price of one completion model
type ModelPrice struct {
	InputPer1K  decimal.Decimal `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K decimal.Decimal `json:"output_per_1k" yaml:"output_per_1k"`
}

// Usage is a user's spend for the current calendar day
type Usage struct {
	UserID          string          `json:"user_id"`
	DailyCost       decimal.Decimal `json:"daily_cost"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
	DailyLimit      decimal.Decimal `json:"daily_limit"`
	MaxRequestCost  decimal.Decimal `json:"max_request_cost"`
}
