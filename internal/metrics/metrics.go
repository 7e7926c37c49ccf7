// Package metrics provides Prometheus metrics for driftwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "driftwatch"
)

// Run metrics
var (
	// RunsTotal counts computation run outcomes, including runs that never
	// started because another worker held the tenant's lock.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total computation run outcomes",
		},
		[]string{"status"}, // success, failed, lock_contention
	)

	// RunDuration tracks end-to-end run latency.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "End-to-end computation run latency in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// RunKeysProcessed tracks grouping keys processed per run.
	RunKeysProcessed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "keys_processed",
			Help:      "Grouping keys processed per run",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

// Detector metrics
var (
	// SignalsTotal counts stored drift signals by type.
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "signals_total",
			Help:      "Total drift signals stored by signal type",
		},
		[]string{"signal_type"},
	)

	// SignalsDeduped counts inserts absorbed by the uniqueness constraint.
	SignalsDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "signals_deduped_total",
			Help:      "Signal inserts absorbed by the dedup constraint",
		},
	)

	// DetectorDuration tracks per-detector evaluation latency.
	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "duration_seconds",
			Help:      "Per-detector evaluation latency in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"signal_type"},
	)
)

// Alerting metrics
var (
	// AlertsEvaluated counts signal-against-rules evaluations.
	AlertsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "evaluated_total",
			Help:      "Total signals evaluated against alert rules",
		},
	)

	// AlertsSuppressed counts suppressed candidates by reason.
	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Total candidate alerts suppressed by reason",
		},
		[]string{"reason"}, // cooldown, learned_noise
	)

	// AlertsDispatched counts dispatch outcomes.
	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dispatched_total",
			Help:      "Total candidate alert dispatch attempts by outcome",
		},
		[]string{"status"}, // sent, failed
	)

	// NetworkAlertsTotal counts payer-wide network alerts.
	NetworkAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "network_total",
			Help:      "Total payer-wide network alerts created",
		},
	)
)

// Claims source metrics
var (
	// ClaimsRead counts claims read from the warehouse.
	ClaimsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "read_total",
			Help:      "Total claims read from the claims warehouse",
		},
	)

	// ClaimsQueryDuration tracks claims warehouse query latency.
	ClaimsQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "claims",
			Name:      "query_duration_seconds",
			Help:      "Claims warehouse query latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
