// Package metrics exposes Prometheus collectors for the download service.
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

var (
	jobsTotal            *prometheus.CounterVec
	activeFetches        prometheus.Gauge
	fetchDurationSeconds *prometheus.HistogramVec
	rateLimitedTotal     prometheus.Counter
	sweptArtifactsTotal  prometheus.Counter
	credentialRefreshes  prometheus.Counter
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadock_jobs_total",
				Help: "Total number of download jobs reaching a terminal state, labeled by state and category.",
			},
			[]string{"state", "category"},
		)

		activeFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediadock_active_fetches",
				Help: "Number of fetches currently holding a concurrency permit.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediadock_fetch_duration_seconds",
				Help:    "Histogram of media fetch durations, labeled by kind.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mediadock_rate_limited_total",
				Help: "Total requests rejected by the admission rate gate.",
			},
		)

		sweptArtifactsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mediadock_swept_artifacts_total",
				Help: "Total stored artifacts deleted by the retention sweeper.",
			},
		)

		credentialRefreshes = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mediadock_credential_refreshes_total",
				Help: "Total credential pool refreshes performed by the rotator.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the terminal-state job counter.
func ObserveJob(state, category string) {
	jobsTotal.WithLabelValues(state, category).Inc()
}

// IncActiveFetches increments the in-flight fetch gauge.
func IncActiveFetches() {
	activeFetches.Inc()
}

// DecActiveFetches decrements the in-flight fetch gauge.
func DecActiveFetches() {
	activeFetches.Dec()
}

// ObserveFetchDuration records one fetch duration.
func ObserveFetchDuration(kind string, duration time.Duration) {
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRateLimited increments the admission rejection counter.
func ObserveRateLimited() {
	rateLimitedTotal.Inc()
}

// ObserveSweptArtifact increments the sweeper deletion counter.
func ObserveSweptArtifact() {
	sweptArtifactsTotal.Inc()
}

// ObserveCredentialRefresh increments the rotator refresh counter.
func ObserveCredentialRefresh() {
	credentialRefreshes.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
