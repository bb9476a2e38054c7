package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/stockbot/services"
	"go.uber.org/zap"
)

func fixedTokens(n int) Tokenizer {
	return TokenizerFunc(func(string) int { return n })
}

func TestEstimator_Cost(t *testing.T) {
	est := NewEstimator("gpt-4", DefaultPrices(), fixedTokens(0), zap.NewNop())

	tests := []struct {
		name       string
		in, out    int
		wantInput  string
		wantOutput string
		wantTotal  string
	}{
		{"one thousand each", 1000, 1000, "0.03", "0.06", "0.09"},
		{"odd counts keep full precision", 1234, 617, "0.03702", "0.03702", "0.07404"},
		{"single token", 1, 1, "0.00003", "0.00006", "0.00009"},
		{"zero", 0, 0, "0", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := est.Cost(tt.in, tt.out)
			require.NoError(t, err)
			assert.Equal(t, "gpt-4", got.Model)
			assert.True(t, got.InputCost.Equal(decimal.RequireFromString(tt.wantInput)), got.InputCost.String())
			assert.True(t, got.OutputCost.Equal(decimal.RequireFromString(tt.wantOutput)), got.OutputCost.String())
			assert.True(t, got.TotalCost.Equal(decimal.RequireFromString(tt.wantTotal)), got.TotalCost.String())
			assert.True(t, got.TotalCost.Equal(got.InputCost.Add(got.OutputCost)))
		})
	}
}

func TestEstimator_EstimateHalvesOutput(t *testing.T) {
	est := NewEstimator("gpt-4", DefaultPrices(), fixedTokens(0), zap.NewNop())

	for _, in := range []int{0, 1, 2, 7, 1001} {
		got, err := est.Estimate(in)
		require.NoError(t, err)
		assert.Equal(t, in, got.InputTokens)
		assert.Equal(t, in/2, got.OutputTokens)
	}
}

func TestEstimator_EstimateText(t *testing.T) {
	est := NewEstimator("gpt-4", DefaultPrices(), fixedTokens(2000), zap.NewNop())

	got, err := est.EstimateText("anything")
	require.NoError(t, err)
	assert.Equal(t, 2000, got.InputTokens)
	assert.Equal(t, 1000, got.OutputTokens)
	// 2000 * 0.03/1K + 1000 * 0.06/1K
	assert.True(t, got.TotalCost.Equal(decimal.RequireFromString("0.12")), got.TotalCost.String())
	assert.Equal(t, 3000, got.TotalTokens())
}

func TestEstimator_UnknownModel(t *testing.T) {
	est := NewEstimator("gpt-9", DefaultPrices(), fixedTokens(10), zap.NewNop())

	_, err := est.Cost(10, 5)
	require.Error(t, err)
	assert.True(t, services.IsEstimationError(err))
	assert.True(t, errors.Is(err, services.ErrEstimationFailed))
	assert.Equal(t, "gpt-9", services.GetErrorDetails(err)["model"])

	_, err = est.EstimateText("hello")
	assert.True(t, services.IsEstimationError(err))
}

func TestEstimator_NegativeTokens(t *testing.T) {
	est := NewEstimator("gpt-4", DefaultPrices(), fixedTokens(0), zap.NewNop())
	_, err := est.Cost(-1, 0)
	assert.True(t, services.IsEstimationError(err))
}

func TestHeuristicTokens(t *testing.T) {
	assert.Equal(t, 0, HeuristicTokens("   "))
	// three words: (3*4+2)/3 = 4; 11 bytes / 4 = 2
	assert.Equal(t, 4, HeuristicTokens("one two six"))
	// Hebrew runes are two bytes each, so the byte guess dominates
	assert.Equal(t, 4, HeuristicTokens("מיקרוסופט"))
}

func TestTiktokenTokenizer(t *testing.T) {
	tok := NewTiktokenTokenizer("gpt-4", zap.NewNop())
	if !tok.Exact() {
		t.Skip("tiktoken encoding unavailable (network or cache miss)")
	}
	assert.Equal(t, 2, tok.CountTokens("hello world"))
	assert.Zero(t, tok.CountTokens(""))
}
