// Package pricing turns prompts into token counts and token counts into
// cost estimates for the configured completion model.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services"
	"go.uber.org/zap"
)

// Estimator prices completion calls for one model
type Estimator struct {
	model     string
	prices    PriceTable
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewEstimator creates an estimator for model
func NewEstimator(model string, prices PriceTable, tokenizer Tokenizer, logger *zap.Logger) *Estimator {
	return &Estimator{
		model:     model,
		prices:    prices,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Model returns the model being priced
func (e *Estimator) Model() string {
	return e.model
}

// EstimateTokens counts the tokens of text
func (e *Estimator) EstimateTokens(text string) int {
	return e.tokenizer.CountTokens(text)
}

// Estimate prices a call whose output size is unknown.
// The output is assumed to be half the input, rounded down.
func (e *Estimator) Estimate(inputTokens int) (models.CostEstimate, error) {
	return e.Cost(inputTokens, inputTokens/2)
}

// EstimateText counts the tokens of text and prices them with Estimate
func (e *Estimator) EstimateText(text string) (models.CostEstimate, error) {
	return e.Estimate(e.EstimateTokens(text))
}

// Cost prices a call with known token counts
func (e *Estimator) Cost(inputTokens, outputTokens int) (models.CostEstimate, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return models.CostEstimate{}, services.NewEstimationError(e.model,
			fmt.Errorf("negative token count: input=%d output=%d", inputTokens, outputTokens))
	}

	mp, ok := e.prices.Lookup(e.model)
	if !ok {
		e.logger.Error("no price entry for model", zap.String("model", e.model))
		return models.CostEstimate{}, services.NewEstimationError(e.model,
			fmt.Errorf("no price entry for model %q", e.model))
	}

	inputCost := decimal.NewFromInt(int64(inputTokens)).Mul(mp.InputPer1K).Shift(-3)
	outputCost := decimal.NewFromInt(int64(outputTokens)).Mul(mp.OutputPer1K).Shift(-3)

	return models.NewCostEstimate(e.model, inputTokens, outputTokens, inputCost, outputCost), nil
}
