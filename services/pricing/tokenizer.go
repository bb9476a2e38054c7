package pricing

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer counts the tokens a completion model will bill for a text
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer counts tokens with the BPE encoding of a model.
// The encoding is loaded on first use; if it cannot be loaded the
// tokenizer falls back to a word/character heuristic.
type TiktokenTokenizer struct {
	model  string
	logger *zap.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenTokenizer creates a tokenizer for model
func NewTiktokenTokenizer(model string, logger *zap.Logger) *TiktokenTokenizer {
	return &TiktokenTokenizer{model: model, logger: logger}
}

func (t *TiktokenTokenizer) load() {
	enc, err := tiktoken.EncodingForModel(t.model)
	if err != nil {
		t.logger.Warn("model encoding unavailable, trying cl100k_base",
			zap.String("model", t.model), zap.Error(err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		t.logger.Warn("tiktoken unavailable, using heuristic token counts", zap.Error(err))
		return
	}
	t.enc = enc
}

// CountTokens returns the token count of text
func (t *TiktokenTokenizer) CountTokens(text string) int {
	t.once.Do(t.load)
	if t.enc == nil {
		return HeuristicTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Exact reports whether counts come from the real encoding
func (t *TiktokenTokenizer) Exact() bool {
	t.once.Do(t.load)
	return t.enc != nil
}

// HeuristicTokens approximates a token count without an encoding.
// It takes the larger of a word-based and a byte-based guess, which
// over-counts non-Latin scripts rather than under-counting them.
func HeuristicTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	wordBased := (len(strings.Fields(text))*4 + 2) / 3
	byteBased := len(text) / 4
	if wordBased > byteBased {
		return wordBased
	}
	return byteBased
}

// TokenizerFunc adapts a function to the Tokenizer interface
type TokenizerFunc func(text string) int

// CountTokens calls f
func (f TokenizerFunc) CountTokens(text string) int {
	return f(text)
}
