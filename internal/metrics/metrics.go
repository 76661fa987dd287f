// Package metrics exposes Prometheus collectors for the report service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDegraded  = "degraded"
	OutcomeFailed    = "failed"
)

var (
	runsTotal                  *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	degradationsTotal          *prometheus.CounterVec
	outputPages                prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once       sync.Once
	activeOnce sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfworker_runs_total",
				Help: "Total number of report runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfworker_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180, 600},
			},
			[]string{"stage"},
		)

		degradationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfworker_degradations_total",
				Help: "Total number of optional sections dropped, labeled by stage.",
			},
			[]string{"stage"},
		)

		outputPages = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pdfworker_output_pages",
				Help:    "Page count of assembled reports.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
			},
			[]string{"method", "route"},
		)
	})
}

// RegisterActiveRuns exposes the in-flight run count through fn. Only the
// first registration takes effect.
func RegisterActiveRuns(fn func() float64) {
	activeOnce.Do(func() {
		promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "pdfworker_active_runs",
				Help: "Number of report runs currently in flight.",
			},
			fn,
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun increments the run counter for outcome.
func ObserveRun(outcome string) {
	Init()
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveDegradation counts an optional stage that was dropped.
func ObserveDegradation(stage string) {
	Init()
	degradationsTotal.WithLabelValues(stage).Inc()
}

// ObservePages records the page count of an assembled report.
func ObservePages(pages int) {
	Init()
	if pages > 0 {
		outputPages.Observe(float64(pages))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
