// Package metrics exposes Prometheus collectors for history operations,
// edit sessions and HTTP traffic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seedbank"

// Metrics owns a registry so tests and multiple servers never collide on
// the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	historyOps   *prometheus.CounterVec
	sessionsOpen prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		// Labels: scope (inventory, session), op (undo, redo), result (ok, unavailable)
		historyOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_operations_total",
			Help:      "Undo and redo requests by scope and outcome",
		}, []string{"scope", "op", "result"}),
		sessionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edit_sessions_open",
			Help:      "Edit sessions currently open",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// HistoryOperation counts an undo or redo attempt.
func (m *Metrics) HistoryOperation(scope, op string, ok bool) {
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	m.historyOps.WithLabelValues(scope, op, result).Inc()
}

// SessionsOpen records the number of open edit sessions.
func (m *Metrics) SessionsOpen(n int) {
	m.sessionsOpen.Set(float64(n))
}

// ObserveRequest records one served HTTP request. route is the matched
// route template, not the raw path.
func (m *Metrics) ObserveRequest(method, route, status string, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the registry backing these collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
