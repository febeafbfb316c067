// Package telemetry holds the Prometheus metrics surface exposed at
// /metrics. A single Registry is built once at process start and
// threaded through the orchestrator and provider client.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Registry holds every Prometheus metric oppscan exports.
type Registry struct {
	PhaseDuration *prometheus.HistogramVec
	PhaseTotal    *prometheus.CounterVec
	PhaseErrors   *prometheus.CounterVec

	ProviderTokensLeft  prometheus.Gauge
	ProviderRequests    *prometheus.CounterVec
	ProviderCircuitOpen prometheus.Gauge

	DQPriceMissingPercent  prometheus.Gauge
	DQRankMissingPercent   prometheus.Gauge
	DQReviewMissingPercent prometheus.Gauge
	DQPassed               prometheus.Gauge

	ErrorRate           prometheus.Gauge
	ErrorBudgetBreached prometheus.Gauge

	RunsTotal    *prometheus.CounterVec
	ShortlistLen prometheus.Gauge
}

// NewRegistry builds and registers every metric with the default
// Prometheus registerer.
func NewRegistry() *Registry {
	return NewRegistryWithRegisterer(prometheus.DefaultRegisterer)
}

// NewRegistryWithRegisterer builds every metric and registers it with
// reg instead of the process-global default registerer. Tests that
// build more than one Registry in the same binary should pass a fresh
// prometheus.NewRegistry() here to avoid duplicate-registration panics.
func NewRegistryWithRegisterer(reg prometheus.Registerer) *Registry {
	r := &Registry{
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oppscan_phase_duration_seconds",
				Help:    "Duration of each orchestrator phase in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"phase"},
		),

		PhaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oppscan_phase_total",
				Help: "Total number of orchestrator phases executed",
			},
			[]string{"phase"},
		),

		PhaseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oppscan_phase_errors_total",
				Help: "Total number of orchestrator phase errors by kind",
			},
			[]string{"phase", "error_type"},
		),

		ProviderTokensLeft: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_provider_tokens_left",
				Help: "Remaining tokens in the provider's remote rate budget",
			},
		),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oppscan_provider_requests_total",
				Help: "Total provider requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),

		ProviderCircuitOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_provider_circuit_open",
				Help: "1 if the provider circuit breaker is open, else 0",
			},
		),

		DQPriceMissingPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_dq_price_missing_percent",
				Help: "Percent of snapshots in the last run missing a price",
			},
		),

		DQRankMissingPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_dq_rank_missing_percent",
				Help: "Percent of snapshots in the last run missing a rank",
			},
		),

		DQReviewMissingPercent: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_dq_review_missing_percent",
				Help: "Percent of snapshots in the last run missing a review count",
			},
		),

		DQPassed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_dq_passed",
				Help: "1 if the last run passed the data-quality gate, else 0",
			},
		),

		ErrorRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_error_rate",
				Help: "Fraction of ASINs that failed to fetch in the last run",
			},
		),

		ErrorBudgetBreached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_error_budget_breached",
				Help: "1 if the last run breached its error budget, else 0",
			},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oppscan_runs_total",
				Help: "Total number of pipeline runs by final status",
			},
			[]string{"status"},
		),

		ShortlistLen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oppscan_shortlist_length",
				Help: "Number of products in the currently active shortlist",
			},
		),
	}

	reg.MustRegister(
		r.PhaseDuration, r.PhaseTotal, r.PhaseErrors,
		r.ProviderTokensLeft, r.ProviderRequests, r.ProviderCircuitOpen,
		r.DQPriceMissingPercent, r.DQRankMissingPercent, r.DQReviewMissingPercent, r.DQPassed,
		r.ErrorRate, r.ErrorBudgetBreached,
		r.RunsTotal, r.ShortlistLen,
	)

	return r
}

// PhaseTimer tracks execution time for one orchestrator phase.
type PhaseTimer struct {
	registry *Registry
	phase    string
	start    time.Time
}

// StartPhaseTimer begins timing a phase.
func (r *Registry) StartPhaseTimer(phase string) *PhaseTimer {
	return &PhaseTimer{registry: r, phase: phase, start: time.Now()}
}

// Stop records the phase duration and increments its counter.
func (pt *PhaseTimer) Stop() {
	duration := time.Since(pt.start)
	pt.registry.PhaseDuration.WithLabelValues(pt.phase).Observe(duration.Seconds())
	pt.registry.PhaseTotal.WithLabelValues(pt.phase).Inc()
}

// RecordPhaseError records a phase-level error.
func (r *Registry) RecordPhaseError(phase, errorType string) {
	r.PhaseErrors.WithLabelValues(phase, errorType).Inc()
	log.Warn().Str("phase", phase).Str("error_type", errorType).Msg("phase error recorded")
}

// RecordProviderRequest records one provider HTTP call outcome.
func (r *Registry) RecordProviderRequest(endpoint, outcome string) {
	r.ProviderRequests.WithLabelValues(endpoint, outcome).Inc()
}

// boolToFloat is a small formatting helper shared by every gauge that
// mirrors a boolean run outcome.
func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RecordRunOutcome updates the gauges derived from a finished run's
// data-quality and error-budget figures, and increments RunsTotal.
func (r *Registry) RecordRunOutcome(status string, priceMissingPct, rankMissingPct, reviewMissingPct float64, dqPassed bool, errorRate float64, errorBudgetBreached bool) {
	r.RunsTotal.WithLabelValues(status).Inc()
	r.DQPriceMissingPercent.Set(priceMissingPct)
	r.DQRankMissingPercent.Set(rankMissingPct)
	r.DQReviewMissingPercent.Set(reviewMissingPct)
	r.DQPassed.Set(boolToFloat(dqPassed))
	r.ErrorRate.Set(errorRate)
	r.ErrorBudgetBreached.Set(boolToFloat(errorBudgetBreached))
}
