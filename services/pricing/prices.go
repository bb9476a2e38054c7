package pricing

import (
	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/models"
)

// PriceTable maps a model name to its per-thousand-token prices
type PriceTable map[string]models.ModelPrice

func price(input, output string) models.ModelPrice {
	return models.ModelPrice{
		InputPer1K:  decimal.RequireFromString(input),
		OutputPer1K: decimal.RequireFromString(output),
	}
}

// DefaultPrices returns list prices in USD per 1K tokens
func DefaultPrices() PriceTable {
	return PriceTable{
		"gpt-4":         price("0.03", "0.06"),
		"gpt-4-turbo":   price("0.01", "0.03"),
		"gpt-4o":        price("0.005", "0.015"),
		"gpt-4o-mini":   price("0.00015", "0.0006"),
		"gpt-35-turbo":  price("0.0005", "0.0015"),
		"gpt-3.5-turbo": price("0.0005", "0.0015"),
	}
}

// Lookup returns the prices for model
func (p PriceTable) Lookup(model string) (models.ModelPrice, bool) {
	mp, ok := p[model]
	return mp, ok
}
