package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's prometheus registry and instruments. Each
// gateway instance carries its own registry so tests never collide on the
// global one.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	messagesAdded  prometheus.Counter
	degradedSlices prometheus.Counter
	upstreamErrors prometheus.Counter
	retrieveTime   prometheus.Histogram
}

// NewMetrics creates and registers the gateway instruments.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contextd",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "status"})

	m.messagesAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "contextd",
		Name:      "messages_added_total",
		Help:      "Messages stored through the add endpoint.",
	})

	m.degradedSlices = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "contextd",
		Name:      "degraded_slices_total",
		Help:      "Context slices served in recency-only degraded mode.",
	})

	m.upstreamErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "contextd",
		Name:      "upstream_errors_total",
		Help:      "Embedding provider failures surfaced to clients.",
	})

	m.retrieveTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "contextd",
		Name:      "retrieve_duration_seconds",
		Help:      "Latency of context slice assembly.",
		Buckets:   prometheus.DefBuckets,
	})

	m.registry.MustRegister(
		m.requests,
		m.messagesAdded,
		m.degradedSlices,
		m.upstreamErrors,
		m.retrieveTime,
	)
	return m
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
