package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/repositories"
	"github.com/upb/stockbot/services"
	"go.uber.org/zap"
)

// periodLayout keys a ledger day
const periodLayout = "2006-01-02"

// Limits are the per-user cost ceilings
type Limits struct {
	MaxRequestCost decimal.Decimal
	DailyLimit     decimal.Decimal
}

// CheckResult represents the result of a budget check
type CheckResult struct {
	Allowed         bool
	Reason          services.DenialReason
	EstimatedCost   decimal.Decimal
	DailyCost       decimal.Decimal
	DailyLimit      decimal.Decimal
	MaxRequestCost  decimal.Decimal
	RemainingBudget decimal.Decimal
}

// Err converts a denial into its domain error, or nil when allowed
func (r *CheckResult) Err() error {
	switch r.Reason {
	case services.ReasonPerRequestCeilingExceeded:
		return services.NewPerRequestCeilingError(r.EstimatedCost, r.MaxRequestCost)
	case services.ReasonDailyCeilingExceeded:
		return services.NewDailyCeilingError(r.EstimatedCost, r.DailyCost, r.DailyLimit, r.RemainingBudget)
	}
	return nil
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the timezone whose calendar day bounds the daily ceiling
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// Service is the per-user daily spend ledger.
// CanSpend and GetUsage never write; Record is the only mutator.
type Service struct {
	ledger repositories.LedgerRepository
	txMgr  repositories.TransactionManager
	limits Limits
	now    func() time.Time
	loc    *time.Location
	logger *zap.Logger
}

// NewService creates a new budget ledger
func NewService(ledger repositories.LedgerRepository, txMgr repositories.TransactionManager, limits Limits, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		ledger: ledger,
		txMgr:  txMgr,
		limits: limits,
		now:    time.Now,
		loc:    time.UTC,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the configured ceilings
func (s *Service) Limits() Limits {
	return s.limits
}

// CanSpend checks whether a request with the given estimated cost may run.
// The per-request ceiling is checked first and applies regardless of the
// user's daily spend.
func (s *Service) CanSpend(ctx context.Context, userID string, estimatedCost decimal.Decimal) (*CheckResult, error) {
	entry, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	remaining := s.remaining(entry.DailyCost)
	result := &CheckResult{
		Allowed:         true,
		EstimatedCost:   estimatedCost,
		DailyCost:       entry.DailyCost,
		DailyLimit:      s.limits.DailyLimit,
		MaxRequestCost:  s.limits.MaxRequestCost,
		RemainingBudget: remaining,
	}

	switch {
	case estimatedCost.GreaterThan(s.limits.MaxRequestCost):
		result.Allowed = false
		result.Reason = services.ReasonPerRequestCeilingExceeded
	case entry.DailyCost.Add(estimatedCost).GreaterThan(s.limits.DailyLimit):
		result.Allowed = false
		result.Reason = services.ReasonDailyCeilingExceeded
	}

	if !result.Allowed {
		s.logger.Info("budget check denied",
			zap.String("user_id", userID),
			zap.String("reason", string(result.Reason)),
			zap.Stringer("estimated_cost", estimatedCost),
			zap.Stringer("daily_cost", entry.DailyCost),
			zap.Stringer("remaining_budget", remaining),
		)
	}

	return result, nil
}

// Record adds an actual cost to the user's daily spend and returns the new usage
func (s *Service) Record(ctx context.Context, userID string, actualCost decimal.Decimal) (*models.Usage, error) {
	if actualCost.IsNegative() {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "cost cannot be negative", nil).
			WithDetail("cost", actualCost.String())
	}

	entry, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, _ repositories.Transaction) (*models.LedgerEntry, error) {
		entry, err := s.current(ctx, userID)
		if err != nil {
			return nil, err
		}
		entry.DailyCost = entry.DailyCost.Add(actualCost)
		entry.UpdatedAt = s.now()
		if err := s.ledger.Save(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to save ledger entry: %w", err)
		}
		return entry, nil
	})
	if err != nil {
		return nil, services.WrapInternal("failed to record cost", err)
	}

	s.logger.Debug("cost recorded",
		zap.String("user_id", userID),
		zap.Stringer("cost", actualCost),
		zap.Stringer("daily_cost", entry.DailyCost),
	)

	return s.usage(entry), nil
}

// GetUsage returns the user's spend for the current day
func (s *Service) GetUsage(ctx context.Context, userID string) (*models.Usage, error) {
	entry, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.usage(entry), nil
}

// current loads the user's entry and applies the lazy day reset in memory.
// A user with no entry starts the day at zero.
func (s *Service) current(ctx context.Context, userID string) (*models.LedgerEntry, error) {
	now := s.now()

	entry, err := s.ledger.Get(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to load ledger entry", err)
	}
	if entry == nil {
		return models.NewLedgerEntry(userID, now), nil
	}

	if s.periodKey(entry.LastResetAt) != s.periodKey(now) {
		s.logger.Debug("daily budget reset",
			zap.String("user_id", userID),
			zap.Time("last_reset_at", entry.LastResetAt),
			zap.Stringer("previous_daily_cost", entry.DailyCost),
		)
		entry.DailyCost = decimal.Zero
		entry.LastResetAt = now
	}

	return entry, nil
}

func (s *Service) usage(entry *models.LedgerEntry) *models.Usage {
	return &models.Usage{
		UserID:          entry.UserID,
		DailyCost:       entry.DailyCost,
		RemainingBudget: s.remaining(entry.DailyCost),
		DailyLimit:      s.limits.DailyLimit,
		MaxRequestCost:  s.limits.MaxRequestCost,
	}
}

// remaining never goes below zero even if actual costs overshot the limit
func (s *Service) remaining(dailyCost decimal.Decimal) decimal.Decimal {
	r := s.limits.DailyLimit.Sub(dailyCost)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// periodKey returns the calendar day of t in the ledger's timezone
func (s *Service) periodKey(t time.Time) string {
	return t.In(s.loc).Format(periodLayout)
}
