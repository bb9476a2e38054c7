package assistant

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/upb/stockbot/internal/observability"
	"github.com/upb/stockbot/models"
)

const (
	outcomeAwaiting     = observability.OutcomeAwaiting
	outcomeExecuted     = observability.OutcomeExecuted
	outcomeCancelled    = observability.OutcomeCancelled
	outcomeDenied       = observability.OutcomeDenied
	outcomeError        = observability.OutcomeError
	outcomeUnresolved   = observability.OutcomeUnresolved
	outcomeNoPending    = observability.OutcomeNoPending
	outcomeUnauthorized = observability.OutcomeUnauthorized
)

type nopAuditor struct{}

func (nopAuditor) LogEstimated(string, string, string, models.CostEstimate) {}
func (nopAuditor) LogDenied(string, string, string, models.CostEstimate, string, map[string]interface{}) {
}
func (nopAuditor) LogCancelled(string, models.PendingAnalysis)                                  {}
func (nopAuditor) LogExecuted(string, models.PendingAnalysis, models.CostEstimate, time.Duration) {}
func (nopAuditor) LogFailed(string, models.PendingAnalysis, error)                              {}
func (nopAuditor) LogNoPending(string, string)                                                  {}
func (nopAuditor) LogAccessChange(string, string, bool)                                         {}

type nopMetrics struct{}

func (nopMetrics) RecordInteraction(string) {}
func (nopMetrics) RecordDenial(string)      {}
func (nopMetrics) RecordCompletion(string, int, int, decimal.Decimal, time.Duration, bool) {
}
func (nopMetrics) RecordUnrecordedCharge(string, decimal.Decimal) {}
func (nopMetrics) SetPendingSessions(int)                        {}
