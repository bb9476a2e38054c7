// Package assistant runs the cost-gated question workflow: a question is
// priced and parked until the user confirms, and only a confirmed and
// completed call is charged.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/internal/privacy"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services"
	"github.com/upb/stockbot/services/budget"
	"github.com/upb/stockbot/services/providers"
	"github.com/upb/stockbot/services/session"
	"go.uber.org/zap"
)

// TickerResolver maps free text to a symbol
type TickerResolver interface {
	Resolve(text string) (string, bool)
}

// QuoteSource is the market-data collaborator
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// NewsSource is the news collaborator. It never fails.
type NewsSource interface {
	Recent(ctx context.Context, symbol string) []models.NewsItem
}

// CostEstimator prices completion calls
type CostEstimator interface {
	Model() string
	EstimateText(text string) (models.CostEstimate, error)
	Cost(inputTokens, outputTokens int) (models.CostEstimate, error)
}

// Ledger is the per-user daily spend ledger
type Ledger interface {
	CanSpend(ctx context.Context, userID string, estimatedCost decimal.Decimal) (*budget.CheckResult, error)
	Record(ctx context.Context, userID string, actualCost decimal.Decimal) (*models.Usage, error)
	GetUsage(ctx context.Context, userID string) (*models.Usage, error)
}

// Sessions holds pending analyses
type Sessions interface {
	Begin(p models.PendingAnalysis)
	Take(userID string) (models.PendingAnalysis, bool)
	Has(userID string) bool
	Stats() session.Stats
}

// AccessControl is the allow-list collaborator
type AccessControl interface {
	IsAllowed(ctx context.Context, userID string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	Grant(ctx context.Context, actorID, targetID string) (bool, error)
	Revoke(ctx context.Context, actorID, targetID string) (bool, error)
}

// Auditor receives workflow events
type Auditor interface {
	LogEstimated(userID, requestID, symbol string, est models.CostEstimate)
	LogDenied(userID, requestID, symbol string, est models.CostEstimate, reason string, details map[string]interface{})
	LogCancelled(userID string, pending models.PendingAnalysis)
	LogExecuted(userID string, pending models.PendingAnalysis, actual models.CostEstimate, latency time.Duration)
	LogFailed(userID string, pending models.PendingAnalysis, cause error)
	LogNoPending(userID, reply string)
	LogAccessChange(actorID, targetID string, granted bool)
}

// Metrics receives workflow counters
type Metrics interface {
	RecordInteraction(outcome string)
	RecordDenial(reason string)
	RecordCompletion(model string, inputTokens, outputTokens int, cost decimal.Decimal, latency time.Duration, ok bool)
	RecordUnrecordedCharge(model string, cost decimal.Decimal)
	SetPendingSessions(n int)
}

// Deps are the collaborators of a Service. Audit and Metrics may be nil.
type Deps struct {
	Resolver   TickerResolver
	Quotes     QuoteSource
	News       NewsSource
	Estimator  CostEstimator
	Ledger     Ledger
	Sessions   Sessions
	Completion providers.Provider
	Access     AccessControl
	Audit      Auditor
	Metrics    Metrics
}

// Service is the orchestrator. Turns for one user run one at a time;
// different users proceed concurrently.
type Service struct {
	resolver   TickerResolver
	quotes     QuoteSource
	news       NewsSource
	estimator  CostEstimator
	ledger     Ledger
	sessions   Sessions
	completion providers.Provider
	access     AccessControl
	audit      Auditor
	metrics    Metrics
	locks      *userLocks
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates a new orchestrator
func NewService(deps Deps, logger *zap.Logger) *Service {
	s := &Service{
		resolver:   deps.Resolver,
		quotes:     deps.Quotes,
		news:       deps.News,
		estimator:  deps.Estimator,
		ledger:     deps.Ledger,
		sessions:   deps.Sessions,
		completion: deps.Completion,
		access:     deps.Access,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		locks:      newUserLocks(),
		now:        time.Now,
		logger:     logger,
	}
	if s.audit == nil {
		s.audit = nopAuditor{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// ResolveTicker returns the symbol mentioned in text
func (s *Service) ResolveTicker(text string) (string, error) {
	symbol, ok := s.resolver.Resolve(text)
	if !ok {
		return "", services.NewResolutionError(text)
	}
	return symbol, nil
}

// HandleMessage runs one chat turn. With a pending analysis the text is the
// yes/no reply. An affirmative reply with nothing pending reports the missing
// analysis; any other text is a new question. Failures are reported on the
// outcome, never returned.
func (s *Service) HandleMessage(ctx context.Context, userID, text string) *Outcome {
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.authorize(ctx, userID); err != nil {
		s.metrics.RecordInteraction(outcomeUnauthorized)
		return (&Outcome{}).fail(StateIdle, err)
	}

	var (
		out *Outcome
		err error
	)
	if s.sessions.Has(userID) || IsAffirmative(text) {
		out, err = s.confirm(ctx, userID, text)
	} else {
		out, err = s.ask(ctx, userID, text)
	}
	if err != nil && out.Err == nil {
		out.fail(StateError, err)
	}
	return out
}

// Ask resolves the company in text, gathers market data and news, and
// begins a request for it
func (s *Service) Ask(ctx context.Context, userID, text string) (*Outcome, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.authorize(ctx, userID); err != nil {
		return (&Outcome{}).fail(StateIdle, err), err
	}
	return s.ask(ctx, userID, text)
}

// BeginRequest prices prompt and, when the ledger allows it, parks it until
// the user confirms. Any earlier pending analysis is replaced.
func (s *Service) BeginRequest(ctx context.Context, userID, symbol, question, prompt string) (*Outcome, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.authorize(ctx, userID); err != nil {
		return (&Outcome{}).fail(StateIdle, err), err
	}
	return s.begin(ctx, userID, symbol, question, prompt)
}

// Confirm applies the user's reply to the pending analysis
func (s *Service) Confirm(ctx context.Context, userID, reply string) (*Outcome, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.authorize(ctx, userID); err != nil {
		return (&Outcome{}).fail(StateIdle, err), err
	}
	return s.confirm(ctx, userID, reply)
}

// Usage returns the user's spend for the current day
func (s *Service) Usage(ctx context.Context, userID string) (*models.Usage, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}
	usage, err := s.ledger.GetUsage(ctx, userID)
	if err != nil {
		return nil, services.WrapInternal("failed to read usage", err)
	}
	usage.UserID = userID
	return usage, nil
}

// HasPending reports whether the user has an analysis awaiting a reply
func (s *Service) HasPending(userID string) bool {
	return s.sessions.Has(userID)
}

// IsAllowed reports whether the user may use the assistant
func (s *Service) IsAllowed(ctx context.Context, userID string) (bool, error) {
	return s.access.IsAllowed(ctx, userID)
}

// IsAdmin reports whether the user may administer the assistant
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return s.access.IsAdmin(ctx, userID)
}

// GrantAccess adds target to the allow-list on behalf of an admin
func (s *Service) GrantAccess(ctx context.Context, actorID, targetID string) (bool, error) {
	changed, err := s.access.Grant(ctx, actorID, targetID)
	if err != nil {
		return false, err
	}
	if changed {
		s.audit.LogAccessChange(actorID, targetID, true)
	}
	return changed, nil
}

// RevokeAccess removes target from the allow-list on behalf of an admin
func (s *Service) RevokeAccess(ctx context.Context, actorID, targetID string) (bool, error) {
	changed, err := s.access.Revoke(ctx, actorID, targetID)
	if err != nil {
		return false, err
	}
	if changed {
		s.audit.LogAccessChange(actorID, targetID, false)
	}
	return changed, nil
}

func (s *Service) authorize(ctx context.Context, userID string) error {
	allowed, err := s.access.IsAllowed(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return services.NewDomainError(services.ErrorTypeForbidden, "user is not on the allow-list", nil).
			WithDetail("user_id", userID)
	}
	return nil
}

// ask must run under the user's lock
func (s *Service) ask(ctx context.Context, userID, text string) (*Outcome, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return (&Outcome{}).fail(StateIdle, services.ErrEmptyQuestion), services.ErrEmptyQuestion
	}

	symbol, err := s.ResolveTicker(question)
	if err != nil {
		s.metrics.RecordInteraction(outcomeUnresolved)
		return (&Outcome{}).fail(StateDenied, err), err
	}

	quote, err := s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		if !services.IsExternalError(err) {
			err = services.NewCollaboratorError("market", err)
		}
		s.logger.Warn("market data unavailable",
			zap.String("user_id", userID),
			zap.String("symbol", symbol),
			zap.Error(err))
		s.metrics.RecordInteraction(outcomeError)
		return (&Outcome{Symbol: symbol}).fail(StateError, err), err
	}
	items := s.news.Recent(ctx, symbol)

	prompt := BuildPrompt(privacy.RedactPII(question), symbol, quote, items)
	return s.begin(ctx, userID, symbol, question, prompt)
}

// begin must run under the user's lock. canSpend is always consulted
// before the pending analysis is stored.
func (s *Service) begin(ctx context.Context, userID, symbol, question, prompt string) (*Outcome, error) {
	out := &Outcome{RequestID: uuid.NewString(), Symbol: symbol}

	est, err := s.estimator.EstimateText(prompt)
	if err != nil {
		if !services.IsEstimationError(err) {
			err = services.NewEstimationError(s.estimator.Model(), err)
		}
		s.logger.Error("cost estimation failed", zap.String("user_id", userID), zap.Error(err))
		s.metrics.RecordInteraction(outcomeError)
		return out.fail(StateDenied, err), err
	}
	out.Estimate = &est

	check, err := s.ledger.CanSpend(ctx, userID, est.TotalCost)
	if err != nil {
		err = services.WrapInternal("failed to check budget", err)
		s.metrics.RecordInteraction(outcomeError)
		return out.fail(StateError, err), err
	}
	remaining := check.RemainingBudget
	out.RemainingBudget = &remaining

	if !check.Allowed {
		denial := check.Err()
		s.audit.LogDenied(userID, out.RequestID, symbol, est, string(check.Reason), services.GetErrorDetails(denial))
		s.metrics.RecordDenial(string(check.Reason))
		s.metrics.RecordInteraction(outcomeDenied)
		return out.fail(StateDenied, denial), denial
	}

	s.sessions.Begin(models.PendingAnalysis{
		RequestID: out.RequestID,
		UserID:    userID,
		Symbol:    symbol,
		Question:  question,
		Prompt:    prompt,
		Estimate:  est,
		CreatedAt: s.now(),
	})
	s.metrics.SetPendingSessions(s.sessions.Stats().Size)
	s.audit.LogEstimated(userID, out.RequestID, symbol, est)
	s.metrics.RecordInteraction(outcomeAwaiting)

	s.logger.Info("analysis awaiting confirmation",
		zap.String("user_id", userID),
		zap.String("request_id", out.RequestID),
		zap.String("symbol", symbol),
		zap.Int("input_tokens", est.InputTokens),
		zap.Stringer("estimated_cost", est.TotalCost))

	out.State = StateAwaitingConfirmation
	return out, nil
}

// confirm must run under the user's lock. The pending analysis is cleared
// whatever the reply, and the ledger is charged only after the completion
// call succeeds.
func (s *Service) confirm(ctx context.Context, userID, reply string) (*Outcome, error) {
	pending, ok := s.sessions.Take(userID)
	if !ok {
		err := services.NewNoPendingError(userID)
		s.audit.LogNoPending(userID, reply)
		s.metrics.RecordInteraction(outcomeNoPending)
		return (&Outcome{}).fail(StateIdle, err), err
	}
	s.metrics.SetPendingSessions(s.sessions.Stats().Size)

	est := pending.Estimate
	out := &Outcome{RequestID: pending.RequestID, Symbol: pending.Symbol, Estimate: &est}

	if !IsAffirmative(reply) {
		s.audit.LogCancelled(userID, pending)
		s.metrics.RecordInteraction(outcomeCancelled)
		s.logger.Info("analysis cancelled",
			zap.String("user_id", userID),
			zap.String("request_id", pending.RequestID))
		out.State = StateCancelled
		return out, nil
	}

	out.State = StateExecuting
	started := s.now()
	resp, err := s.completion.ChatCompletion(ctx, &providers.ChatRequest{
		Model: est.Model,
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: pending.Prompt},
		},
		User:     userID,
		Metadata: map[string]string{"request_id": pending.RequestID, "symbol": pending.Symbol},
	})
	latency := s.now().Sub(started)
	if err != nil {
		err = services.NewCollaboratorError("completion", err)
		s.metrics.RecordCompletion(est.Model, 0, 0, decimal.Zero, latency, false)
		s.metrics.RecordInteraction(outcomeError)
		s.audit.LogFailed(userID, pending, err)
		s.logger.Error("completion failed",
			zap.String("user_id", userID),
			zap.String("request_id", pending.RequestID),
			zap.Error(err))
		return out.fail(StateError, err), err
	}

	actual, err := s.estimator.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if err != nil {
		// the call happened, so charge what was approved
		s.logger.Error("failed to price completion, charging estimate",
			zap.String("request_id", pending.RequestID),
			zap.Error(err))
		actual = est
	}
	out.Actual = &actual
	out.Answer = resp.Text()

	usage, err := s.ledger.Record(ctx, userID, actual.TotalCost)
	if err != nil {
		s.logger.Error("failed to record cost",
			zap.String("user_id", userID),
			zap.String("request_id", pending.RequestID),
			zap.Stringer("cost", actual.TotalCost),
			zap.Error(err))
		out.Unrecorded = true
		s.metrics.RecordUnrecordedCharge(actual.Model, actual.TotalCost)
	} else {
		remaining := usage.RemainingBudget
		out.RemainingBudget = &remaining
	}

	s.metrics.RecordCompletion(actual.Model, actual.InputTokens, actual.OutputTokens, actual.TotalCost, latency, true)
	s.metrics.RecordInteraction(outcomeExecuted)
	s.audit.LogExecuted(userID, pending, actual, latency)

	s.logger.Info("analysis executed",
		zap.String("user_id", userID),
		zap.String("request_id", pending.RequestID),
		zap.String("symbol", pending.Symbol),
		zap.Stringer("estimated_cost", est.TotalCost),
		zap.Stringer("actual_cost", actual.TotalCost),
		zap.Duration("latency", latency))

	out.State = StateDone
	return out, nil
}

// IsNoPending reports whether err means there was nothing to confirm
func IsNoPending(err error) bool {
	return errors.Is(err, services.ErrNoPendingAnalysis)
}
