// Package metrics exposes Prometheus collectors for changelog runs.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Document statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics owns a private registry so a run can be exported to a textfile
// without the Go runtime collectors.
type Metrics struct {
	registry *prometheus.Registry

	strategyAttempts    *prometheus.CounterVec
	strategyDuration    *prometheus.HistogramVec
	documentsTotal      *prometheus.CounterVec
	taskDuration        prometheus.Histogram
	changesNotified     prometheus.Counter
	changesSuppressed   prometheus.Counter
	notifyFailures      prometheus.Counter
	rateLimitDelays     *prometheus.HistogramVec
	lastRunTimestamp    prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		strategyAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "changelog_strategy_attempts_total",
				Help: "Retrieval strategy attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		strategyDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "changelog_strategy_duration_seconds",
				Help:    "Histogram of retrieval attempt latencies, labeled by strategy.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		),
		documentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "changelog_documents_total",
				Help: "Documents processed, labeled by status.",
			},
			[]string{"status"},
		),
		taskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "changelog_task_duration_seconds",
			Help:    "Histogram of end-to-end document task durations.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),
		changesNotified: f.NewCounter(prometheus.CounterOpts{
			Name: "changelog_changes_notified_total",
			Help: "Change records forwarded to the notifier.",
		}),
		changesSuppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "changelog_changes_suppressed_total",
			Help: "Change records suppressed because they were already announced.",
		}),
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "changelog_notify_failures_total",
			Help: "Notifier posts that failed.",
		}),
		rateLimitDelays: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "changelog_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		),
		lastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "changelog_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
	}
}

// RegisterRuntime adds the Go and process collectors. Serve mode only.
func (m *Metrics) RegisterRuntime() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveAttempt implements retrieval.Observer.
func (m *Metrics) ObserveAttempt(strategy, outcome string, duration time.Duration) {
	m.strategyAttempts.WithLabelValues(strategy, outcome).Inc()
	m.strategyDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveDocument records a finished document task.
func (m *Metrics) ObserveDocument(status string, duration time.Duration) {
	m.documentsTotal.WithLabelValues(status).Inc()
	m.taskDuration.Observe(duration.Seconds())
}

// ObserveNotified counts change records that were posted.
func (m *Metrics) ObserveNotified(n int) {
	if n > 0 {
		m.changesNotified.Add(float64(n))
	}
}

// ObserveSuppressed counts change records dropped by the seen-set.
func (m *Metrics) ObserveSuppressed(n int) {
	if n > 0 {
		m.changesSuppressed.Add(float64(n))
	}
}

// ObserveNotifyFailure counts a failed notifier post.
func (m *Metrics) ObserveNotifyFailure() {
	m.notifyFailures.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (m *Metrics) ObserveRateLimitDelay(domain string, duration time.Duration) {
	m.rateLimitDelays.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRunFinished stamps the last-run gauge.
func (m *Metrics) ObserveRunFinished(at time.Time) {
	m.lastRunTimestamp.Set(float64(at.Unix()))
}

// Handler returns an http.Handler for exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Middleware is a chi middleware that records HTTP request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
