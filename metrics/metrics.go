// Package metrics provides Prometheus metrics for the herbolaria API.
//
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Domain metrics cover catalog reloads, prescription operations and the
// warnings the contraindication evaluator emits.
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (clients seen in the last cleanup window)",
		},
	)

	CatalogHerbs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_herbs",
			Help: "Herbs in the loaded catalog",
		},
	)

	CatalogFormulas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_formulas",
			Help: "Formulas in the loaded catalog",
		},
	)

	CatalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_reloads_total",
			Help: "Catalog reload attempts by result",
		},
		[]string{"result"},
	)

	CatalogReloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_reload_duration_seconds",
			Help:    "Time spent parsing and swapping the catalog",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5},
		},
	)

	PrescriptionOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prescription_operations_total",
			Help: "Prescription operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	WarningsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warnings_emitted_total",
			Help: "Contraindication and caution messages returned to clients",
		},
		[]string{"kind"},
	)

	UnresolvedHerbReferencesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unresolved_herb_references_total",
			Help: "Herb references added to a prescription as a placeholder because the catalog had no match",
		},
	)

	SafetyRuleReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_rule_reloads_total",
			Help: "Loads of the custom safety rules file",
		},
		[]string{"result"},
	)

	DroppedFormulaSharesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dropped_formula_shares_total",
			Help: "Formula constituents left out of a flattened addition because their mass rounds to zero",
		},
	)

	DraftsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "prescription_drafts_active",
			Help: "Drafts currently held in memory",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestTotals,
		HTTPRequestDuration,
		HTTPRequestInFlight,
		RateLimiterBucketsTotal,
		CatalogHerbs,
		CatalogFormulas,
		CatalogReloadsTotal,
		CatalogReloadDuration,
		PrescriptionOperationsTotal,
		WarningsEmittedTotal,
		UnresolvedHerbReferencesTotal,
		SafetyRuleReloadsTotal,
		DroppedFormulaSharesTotal,
		DraftsActive,
	)
}

// RecordOperation counts a prescription operation as "ok" or "error"
func RecordOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PrescriptionOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordWarnings counts emitted warning messages
func RecordWarnings(contraindications, cautions int) {
	if contraindications > 0 {
		WarningsEmittedTotal.WithLabelValues("contraindication").Add(float64(contraindications))
	}
	if cautions > 0 {
		WarningsEmittedTotal.WithLabelValues("caution").Add(float64(cautions))
	}
}
