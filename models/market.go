package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the market snapshot used to build an analysis prompt
type Quote struct {
	Symbol        string          `json:"symbol"`
	DisplayName   string          `json:"display_name"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	PercentChange decimal.Decimal `json:"percent_change"`
}

// NewsItem is one recent headline about a symbol
type NewsItem struct {
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Source         string    `json:"source"`
	URL            string    `json:"url,omitempty"`
	SentimentScore float64   `json:"sentiment_score,omitempty"`
	PublishedAt    time.Time `json:"published_at,omitempty"`
}
