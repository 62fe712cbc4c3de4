// Package metrics exposes query counters for the HTTP front-end.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the query collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	queries  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "queries_total",
			Help:      "Queries answered, by routed category.",
		}, []string{"category"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Name:      "query_errors_total",
			Help:      "Queries whose handler reported an error, by routed category.",
		}, []string{"category"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency including routing.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"category"}),
	}
	m.registry.MustRegister(
		m.queries, m.errors, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveQuery records one answered query.
func (m *Metrics) ObserveQuery(category string, took time.Duration, failed bool) {
	m.queries.WithLabelValues(category).Inc()
	if failed {
		m.errors.WithLabelValues(category).Inc()
	}
	m.duration.WithLabelValues(category).Observe(took.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
