// Package news fetches recent headlines about a symbol from Alpha Vantage.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/upb/stockbot/models"
	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://www.alphavantage.co"
	defaultMaxItems = 5

	// time_published layout, e.g. 20240131T153000
	publishedLayout = "20060102T150405"
)

// Config holds the client settings
type Config struct {
	APIKey   string
	BaseURL  string
	MaxItems int
	Timeout  time.Duration
}

// AlphaVantageClient is the news collaborator
type AlphaVantageClient struct {
	client   *resty.Client
	apiKey   string
	maxItems int
	logger   *zap.Logger
}

type sentimentResponse struct {
	Feed        []feedItem `json:"feed"`
	Information string     `json:"Information"`
	Note        string     `json:"Note"`
}

type feedItem struct {
	Title                 string  `json:"title"`
	URL                   string  `json:"url"`
	TimePublished         string  `json:"time_published"`
	Summary               string  `json:"summary"`
	Source                string  `json:"source"`
	OverallSentimentScore float64 `json:"overall_sentiment_score"`
}

// NewAlphaVantageClient creates a news client
func NewAlphaVantageClient(cfg Config, logger *zap.Logger) *AlphaVantageClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.MaxItems <= 0 || cfg.MaxItems > defaultMaxItems {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &AlphaVantageClient{
		client:   client,
		apiKey:   cfg.APIKey,
		maxItems: cfg.MaxItems,
		logger:   logger,
	}
}

// Recent returns up to MaxItems (at most five) news items for symbol, newest first as
// reported by the provider. Failures are logged and yield an empty list.
func (c *AlphaVantageClient) Recent(ctx context.Context, symbol string) []models.NewsItem {
	items, err := c.fetch(ctx, symbol)
	if err != nil {
		c.logger.Warn("news lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return []models.NewsItem{}
	}
	return items
}

func (c *AlphaVantageClient) fetch(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"function": "NEWS_SENTIMENT",
			"tickers":  symbol,
			"apikey":   c.apiKey,
		}).
		Get("/query")
	if err != nil {
		return nil, fmt.Errorf("failed to call news api: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("news api returned status %d: %s", resp.StatusCode(), resp.String())
	}

	var body sentimentResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to decode news response: %w", err)
	}
	if len(body.Feed) == 0 && (body.Information != "" || body.Note != "") {
		return nil, fmt.Errorf("news api refused request: %s%s", body.Information, body.Note)
	}

	feed := body.Feed
	if len(feed) > c.maxItems {
		feed = feed[:c.maxItems]
	}

	items := make([]models.NewsItem, 0, len(feed))
	for _, f := range feed {
		item := models.NewsItem{
			Title:          f.Title,
			Summary:        f.Summary,
			Source:         f.Source,
			URL:            f.URL,
			SentimentScore: f.OverallSentimentScore,
		}
		if ts, err := time.Parse(publishedLayout, f.TimePublished); err == nil {
			item.PublishedAt = ts
		}
		items = append(items, item)
	}
	return items, nil
}
