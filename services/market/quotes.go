// Package market fetches quote snapshots from Yahoo Finance.
package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services"
	"go.uber.org/zap"
)

// errNoData is returned when the provider knows nothing about a symbol
var errNoData = errors.New("no data for symbol")

// YahooQuotes is the market-data collaborator
type YahooQuotes struct {
	logger *zap.Logger

	// swapped in tests
	getEquity func(symbol string) (*finance.Equity, error)
	getQuote  func(symbol string) (*finance.Quote, error)
}

// NewYahooQuotes creates a client backed by finance-go
func NewYahooQuotes(logger *zap.Logger) *YahooQuotes {
	return &YahooQuotes{
		logger:    logger,
		getEquity: equity.Get,
		getQuote:  quote.Get,
	}
}

// GetQuote returns the current price snapshot for symbol
func (y *YahooQuotes) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, services.ErrInvalidSymbol
	}

	eq, err := call(ctx, func() (*finance.Equity, error) { return y.getEquity(symbol) })
	if err == nil && eq == nil {
		err = errNoData
	}
	if err != nil {
		y.logger.Warn("quote lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, services.NewCollaboratorError("market", fmt.Errorf("failed to get quote for %s: %w", symbol, err))
	}

	return toQuote(symbol, eq), nil
}

// ValidateSymbol fails unless the provider reports a regular market price
func (y *YahooQuotes) ValidateSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return services.ErrInvalidSymbol
	}

	q, err := call(ctx, func() (*finance.Quote, error) { return y.getQuote(symbol) })
	if err != nil {
		return services.NewCollaboratorError("market", fmt.Errorf("failed to validate %s: %w", symbol, err))
	}
	if q == nil || q.RegularMarketPrice == 0 {
		return services.NewDomainError(services.ErrorTypeValidation, "symbol not found at market data provider", nil).
			WithDetail("symbol", symbol)
	}
	return nil
}

func toQuote(symbol string, eq *finance.Equity) *models.Quote {
	name := eq.LongName
	if name == "" {
		name = eq.ShortName
	}
	if name == "" {
		name = symbol
	}

	return &models.Quote{
		Symbol:        symbol,
		DisplayName:   name,
		Price:         decimal.NewFromFloat(eq.RegularMarketPrice),
		PreviousClose: decimal.NewFromFloat(eq.RegularMarketPreviousClose),
		PercentChange: decimal.NewFromFloat(eq.RegularMarketChangePercent),
	}
}

// call runs a blocking provider lookup and gives up when ctx is done.
// finance-go has no context support, so the lookup itself keeps running.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
