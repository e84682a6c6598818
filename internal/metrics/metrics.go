// Package metrics defines the Prometheus collectors for the knowledge base.
// Collectors live on a per-instance registry so tests and embedded servers
// never fight over the global default.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finsight"

// Metrics bundles every collector the service records into.
type Metrics struct {
	// CacheTotal counts cache lookups by tier ("memory"/"disk") and result
	// ("hit"/"miss").
	CacheTotal *prometheus.CounterVec
	// EmbeddingsTotal counts embedding computations by result
	// ("ok"/"cached"/"degraded").
	EmbeddingsTotal *prometheus.CounterVec
	// SearchDuration observes end-to-end question answering latency.
	SearchDuration prometheus.Histogram
	// IngestedChunksTotal counts chunks added to the index.
	IngestedChunksTotal prometheus.Counter

	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		CacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		EmbeddingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embeddings_total",
				Help:      "Embedding computations by result",
			},
			[]string{"result"},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "question_duration_seconds",
				Help:      "Question answering latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		IngestedChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingested_chunks_total",
				Help:      "Chunks added to the index",
			},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CacheTotal,
		m.EmbeddingsTotal,
		m.SearchDuration,
		m.IngestedChunksTotal,
		m.httpRequestDuration,
		m.httpRequestsTotal,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
