// Package metrics provides Prometheus metrics for BlazeWatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "blazewatch"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Monitor metrics
var (
	// MonitorRunsTotal counts monitor runs by type and outcome.
	MonitorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "runs_total",
			Help:      "Total monitor runs",
		},
		[]string{"monitor_type", "result"}, // ok, error, dryrun
	)

	// MonitorRunDuration tracks monitor run latency.
	MonitorRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "run_duration_seconds",
			Help:      "Monitor run latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"monitor_type"},
	)

	// InputDuration tracks search input latency.
	InputDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "input_duration_seconds",
			Help:      "Monitor input resolution latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// TriggerEvaluationsTotal counts trigger evaluations by kind and outcome.
	TriggerEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "evaluations_total",
			Help:      "Total trigger evaluations",
		},
		[]string{"kind", "result"}, // triggered, not_triggered, error
	)
)

// Alert metrics
var (
	// AlertsReconciledTotal counts bucket alerts by reconciliation category.
	AlertsReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "reconciled_total",
			Help:      "Total bucket-level alerts by reconciliation category",
		},
		[]string{"category"},
	)

	// AlertWriteConflictsTotal counts optimistic concurrency conflicts on alert writes.
	AlertWriteConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "write_conflicts_total",
			Help:      "Total alert write version conflicts",
		},
	)

	// HistoryArchivedTotal counts alerts moved to history.
	HistoryArchivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "history_archived_total",
			Help:      "Total alerts archived to history",
		},
		[]string{"backend"},
	)

	// ActionsTotal counts action executions by outcome.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "total",
			Help:      "Total trigger actions",
		},
		[]string{"result"}, // executed, throttled, failed, dryrun
	)
)

// History buffer metrics
var (
	// HistoryBufferPending tracks alerts waiting to be flushed to ClickHouse.
	HistoryBufferPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history_buffer",
			Name:      "pending_alerts",
			Help:      "Archived alerts waiting to be flushed",
		},
	)

	// HistoryBufferDroppedTotal counts alerts dropped due to backpressure.
	HistoryBufferDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history_buffer",
			Name:      "dropped_total",
			Help:      "Total archived alerts dropped due to buffer overflow",
		},
	)
)

// Storage metrics
var (
	// StorageErrors counts storage operation errors.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage operation errors",
		},
		[]string{"operation", "backend"},
	)
)

// Auth metrics
var (
	// AuthFailuresTotal counts rejected API requests.
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Total rejected API authentications",
		},
		[]string{"reason"}, // missing, invalid
	)

	// AuthTokensIssued counts issued service tokens.
	AuthTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "Total service tokens issued",
		},
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
