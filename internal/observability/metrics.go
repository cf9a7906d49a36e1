// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run lifecycle metrics
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec // by terminal status
	RunDuration  prometheus.Histogram

	// Pair pipeline metrics
	PairsEvaluated prometheus.Counter
	PairsSkipped   *prometheus.CounterVec // by reason
	StageDuration  *prometheus.HistogramVec

	// Market data metrics
	FetchAttempts  *prometheus.CounterVec // by outcome
	UniverseSize   prometheus.Gauge
	BarsFetched    prometheus.Counter
	BarCacheHits   prometheus.Counter
	BarCacheMisses prometheus.Counter

	// Storage metrics
	CheckpointDuration prometheus.Histogram
	CheckpointErrors   prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "indicator_lab"
	}

	return &Metrics{
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "started_total",
			Help:      "Total number of research runs started",
		}),
		RunsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "finished_total",
			Help:      "Total number of research runs finished by terminal status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "End-to-end run duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),

		PairsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "pairs_evaluated_total",
			Help:      "Total number of (symbol, timeframe) pairs fully evaluated",
		}),
		PairsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "pairs_skipped_total",
			Help:      "Total number of (symbol, timeframe) pairs skipped by reason",
		}, []string{"reason"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Run stage duration in seconds",
			Buckets:   []float64{0.1, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),

		FetchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_attempts_total",
			Help:      "Total number of exchange HTTP attempts by outcome",
		}, []string{"outcome"}),
		UniverseSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "universe_size",
			Help:      "Number of symbols selected by the last universe pass",
		}),
		BarsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "bars_fetched_total",
			Help:      "Total number of OHLCV bars fetched from the exchange",
		}),
		BarCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "bar_cache_hits_total",
			Help:      "Total number of pair fetches served from the bar cache",
		}),
		BarCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "bar_cache_misses_total",
			Help:      "Total number of pair fetches that went to the exchange",
		}),

		CheckpointDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "checkpoint_duration_seconds",
			Help:      "Run bundle checkpoint write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CheckpointErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "checkpoint_errors_total",
			Help:      "Total number of failed run bundle checkpoint writes",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
