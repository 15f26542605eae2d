// Package metrics provides Prometheus metrics for the submission engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is valid and records
// nothing, so services can be constructed without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Submission metrics
	SubmissionsTotal *prometheus.CounterVec
	EdgesWritten     *prometheus.CounterVec

	// History metrics
	HistoryReconstructions   *prometheus.CounterVec
	HistoryDuration          *prometheus.HistogramVec
	HistorySnapshots         *prometheus.HistogramVec
	HistoryCacheLookups      *prometheus.CounterVec
	HistoryIntegrityFailures *prometheus.CounterVec
}

// New creates all metrics on a fresh registry that also carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcr_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.SubmissionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcr_submissions_total",
			Help: "Total number of revision submissions by side and outcome",
		},
		[]string{"side", "outcome"},
	)

	m.EdgesWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcr_revision_edges_written_total",
			Help: "Join edges opened, closed or recorded as removals",
		},
		[]string{"side", "kind"},
	)

	m.HistoryReconstructions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcr_history_reconstructions_total",
			Help: "Total number of history reconstructions",
		},
		[]string{"side"},
	)

	m.HistoryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcr_history_reconstruction_duration_seconds",
			Help:    "Duration of loading and replaying a history",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"side"},
	)

	m.HistorySnapshots = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcr_history_snapshots",
			Help:    "Number of snapshots in a reconstructed history",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		},
		[]string{"side"},
	)

	m.HistoryCacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcr_history_cache_lookups_total",
			Help: "History cache lookups by result",
		},
		[]string{"side", "result"},
	)

	m.HistoryIntegrityFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcr_history_integrity_failures_total",
			Help: "Histories that could not be rebuilt because stored edges violate an invariant",
		},
		[]string{"side"},
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveSubmission records a submit attempt and, on success, the edges it wrote.
func (m *Metrics) ObserveSubmission(side string, err error, opened, closed, removed int) {
	if m == nil {
		return
	}
	if err != nil {
		m.SubmissionsTotal.WithLabelValues(side, "error").Inc()
		return
	}
	m.SubmissionsTotal.WithLabelValues(side, "ok").Inc()
	m.EdgesWritten.WithLabelValues(side, "opened").Add(float64(opened))
	m.EdgesWritten.WithLabelValues(side, "closed").Add(float64(closed))
	m.EdgesWritten.WithLabelValues(side, "removal").Add(float64(removed))
}

// ObserveHistory records one reconstruction.
func (m *Metrics) ObserveHistory(side string, snapshots int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HistoryReconstructions.WithLabelValues(side).Inc()
	m.HistoryDuration.WithLabelValues(side).Observe(elapsed.Seconds())
	m.HistorySnapshots.WithLabelValues(side).Observe(float64(snapshots))
}

// ObserveIntegrityFailure counts a history that failed an integrity check.
func (m *Metrics) ObserveIntegrityFailure(side string) {
	if m == nil {
		return
	}
	m.HistoryIntegrityFailures.WithLabelValues(side).Inc()
}

// ObserveCache records a history cache hit or miss.
func (m *Metrics) ObserveCache(side string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.HistoryCacheLookups.WithLabelValues(side, result).Inc()
}
