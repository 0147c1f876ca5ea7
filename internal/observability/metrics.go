package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the request pipeline.
//
// It tracks:
//   - provider attempts by model, outcome and failure reason
//   - fallbacks, exhausted candidate lists and skipped candidates
//   - intent classifications by stage
//   - HTTP and ledger latencies
//
// A nil *Metrics is valid; every Record method is a no-op on it.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordAttempt("openrouter", "deepseek/deepseek-r1:free", "success", "", time.Since(start).Seconds())
type Metrics struct {
	// AttemptCounter counts provider attempts.
	// Labels: provider, model, outcome (success|failure), reason
	AttemptCounter *prometheus.CounterVec

	// AttemptDuration measures provider attempt latency in seconds.
	// Labels: provider, model
	AttemptDuration *prometheus.HistogramVec

	// TokensUsed tracks token consumption reported by providers.
	// Labels: provider, model, type (prompt|completion)
	TokensUsed *prometheus.CounterVec

	// RequestCounter counts orchestrated requests by task and result.
	// Labels: task, result (answered|fallback|exhausted)
	RequestCounter *prometheus.CounterVec

	// SkippedCandidates counts candidates skipped for missing credentials.
	// Labels: provider
	SkippedCandidates *prometheus.CounterVec

	// ClassificationCounter counts classified queries.
	// Labels: intent, source (greeting|pattern|disambiguated|remote|default)
	ClassificationCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures ledger query latency.
	// Labels: operation, table
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts ledger queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AttemptCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_attempts_total",
				Help: "Total number of provider attempts by provider, model, outcome and failure reason",
			},
			[]string{"provider", "model", "outcome", "reason"},
		),

		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scholar_attempt_duration_seconds",
				Help:    "Duration of provider attempts in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_requests_total",
				Help: "Total number of orchestrated requests by task and result",
			},
			[]string{"task", "result"},
		),

		SkippedCandidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_skipped_candidates_total",
				Help: "Candidates skipped because the provider had no credential",
			},
			[]string{"provider"},
		),

		ClassificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_classifications_total",
				Help: "Total number of classified queries by intent and deciding stage",
			},
			[]string{"intent", "source"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scholar_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 90},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scholar_database_query_duration_seconds",
				Help:    "Duration of ledger queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scholar_database_queries_total",
				Help: "Total number of ledger queries",
			},
			[]string{"operation", "table", "status"},
		),
	}
}

// RecordAttempt records one provider attempt. reason is empty on success.
func (m *Metrics) RecordAttempt(provider, model, outcome, reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.AttemptCounter.WithLabelValues(provider, model, outcome, reason).Inc()
	m.AttemptDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordTokens adds provider-reported token usage.
func (m *Metrics) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	if promptTokens > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.TokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordRequest records the final result of an orchestrated request.
func (m *Metrics) RecordRequest(task, result string) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(task, result).Inc()
}

// RecordSkip records a candidate skipped for a missing credential.
func (m *Metrics) RecordSkip(provider string) {
	if m == nil {
		return
	}
	m.SkippedCandidates.WithLabelValues(provider).Inc()
}

// RecordClassification records which stage decided a query's intent.
func (m *Metrics) RecordClassification(intent, source string) {
	if m == nil {
		return
	}
	m.ClassificationCounter.WithLabelValues(intent, source).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a ledger query.
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
