package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "stockbot"

// Outcome labels for assistant interactions
const (
	OutcomeAwaiting     = "awaiting_confirmation"
	OutcomeExecuted     = "executed"
	OutcomeCancelled    = "cancelled"
	OutcomeDenied       = "denied"
	OutcomeError        = "error"
	OutcomeUnresolved   = "unresolved"
	OutcomeNoPending    = "no_pending"
	OutcomeUnauthorized = "unauthorized"
)

// Metrics holds the assistant's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	interactions      *prometheus.CounterVec
	tokens            *prometheus.CounterVec
	costUSD           *prometheus.CounterVec
	denials           *prometheus.CounterVec
	unrecorded        *prometheus.CounterVec
	completionLatency *prometheus.HistogramVec
	pendingSessions   prometheus.Gauge
}

// NewMetrics registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Assistant turns by outcome",
		}, []string{"outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "Provider-reported completion tokens",
		}, []string{"model", "type"}), // type: input/output
		costUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_cost_usd_total",
			Help:      "Charged completion cost in USD",
		}, []string{"model"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_denials_total",
			Help:      "Budget denials by reason",
		}, []string{"reason"}),
		unrecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unrecorded_cost_usd_total",
			Help:      "Cost of delivered answers the ledger failed to record",
		}, []string{"model"}),
		completionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Completion call duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		}, []string{"model", "status"}),
		pendingSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_analyses",
			Help:      "Analyses awaiting a yes/no reply",
		}),
	}

	m.registry.MustRegister(
		m.interactions,
		m.tokens,
		m.costUSD,
		m.denials,
		m.unrecorded,
		m.completionLatency,
		m.pendingSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordInteraction counts one assistant turn
func (m *Metrics) RecordInteraction(outcome string) {
	m.interactions.WithLabelValues(outcome).Inc()
}

// RecordDenial counts a budget denial
func (m *Metrics) RecordDenial(reason string) {
	m.denials.WithLabelValues(reason).Inc()
}

// RecordCompletion records one completion call
func (m *Metrics) RecordCompletion(model string, inputTokens, outputTokens int, cost decimal.Decimal, latency time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.completionLatency.WithLabelValues(model, status).Observe(latency.Seconds())
	if !ok {
		return
	}
	m.tokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.tokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	m.costUSD.WithLabelValues(model).Add(cost.InexactFloat64())
}

// RecordUnrecordedCharge counts a delivered answer whose cost never reached
// the ledger
func (m *Metrics) RecordUnrecordedCharge(model string, cost decimal.Decimal) {
	m.unrecorded.WithLabelValues(model).Add(cost.InexactFloat64())
}

// SetPendingSessions reports the number of pending analyses
func (m *Metrics) SetPendingSessions(n int) {
	m.pendingSessions.Set(float64(n))
}
