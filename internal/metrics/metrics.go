// Package metrics exposes the Prometheus instrumentation for the
// scoring service. All metric names carry the stockfunk_ prefix and
// every label set is bounded.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Agent execution outcomes (bounded set).
const (
	OutcomeSuccess   = "success"
	OutcomeTimeout   = "timeout"
	OutcomeConnError = "connection_error"
	OutcomePermanent = "permanent_failure"
	OutcomeBadShape  = "bad_result_shape"
	OutcomeSkipped   = "validation_skip"
)

// NormalizeAgentError maps an arbitrary agent failure to the bounded
// outcome set.
func NormalizeAgentError(cause string) string {
	lower := strings.ToLower(cause)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return OutcomeTimeout
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network"):
		return OutcomeConnError
	case strings.Contains(lower, "shape") || strings.Contains(lower, "invalid result"):
		return OutcomeBadShape
	default:
		return OutcomePermanent
	}
}

// Agent executor metrics
var (
	AgentExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_agent_executions_total",
		Help: "Agent execution attempts by agent name and outcome",
	}, []string{"agent", "outcome"})

	AgentRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_agent_retries_total",
		Help: "Transient-failure retries by agent name",
	}, []string{"agent"})

	AgentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockfunk_agent_duration_seconds",
		Help:    "Wall time of one agent execution including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"agent"})

	ExecutorDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockfunk_executor_degraded_total",
		Help: "Executor passes that completed with at least one failed agent",
	})
)

// Scoring metrics
var (
	ScoreRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_score_requests_total",
		Help: "Scoring requests by result (hit, scored, error)",
	}, []string{"result"})

	ScoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_score_duration_seconds",
		Help:    "End-to-end latency of one symbol score",
		Buckets: prometheus.DefBuckets,
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockfunk_analysis_cache_hits_total",
		Help: "Analysis cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockfunk_analysis_cache_misses_total",
		Help: "Analysis cache misses",
	})

	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockfunk_analysis_cache_size",
		Help: "Current number of cached score results",
	})
)

// Regime metrics
var (
	RegimeRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_regime_refreshes_total",
		Help: "Regime classifications by resulting label",
	}, []string{"label"})

	RegimeFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockfunk_regime_fetch_failures_total",
		Help: "Benchmark fetches that fell back to default weights",
	})
)

// Provider metrics
var (
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_provider_requests_total",
		Help: "Market data provider calls by operation and result",
	}, []string{"operation", "result"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockfunk_provider_duration_seconds",
		Help:    "Market data provider call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// HTTP API metrics
var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_api_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	APIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockfunk_api_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Risk and backtest metrics
var (
	RiskEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_risk_events_total",
		Help: "Risk manager actions by event type",
	}, []string{"event"})

	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockfunk_backtest_runs_total",
		Help: "Backtest runs by terminal state",
	}, []string{"state"})

	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockfunk_backtest_duration_seconds",
		Help:    "Wall time of one backtest run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// RecordAgentExecution records the terminal outcome of one agent slot.
func RecordAgentExecution(agent, outcome string, durationSeconds float64) {
	AgentExecutions.WithLabelValues(agent, outcome).Inc()
	AgentDuration.WithLabelValues(agent).Observe(durationSeconds)
}

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route, status string, durationSeconds float64) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordProviderCall records one provider round trip.
func RecordProviderCall(operation string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderRequests.WithLabelValues(operation, result).Inc()
	ProviderDuration.WithLabelValues(operation).Observe(durationSeconds)
}
