// Package metrics provides Prometheus instrumentation for the Hakanai
// server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SecretsCreated   prometheus.Counter
	SecretsRetrieved prometheus.Counter
	SecretsExpired   prometheus.Counter
	SecretsDenied    *prometheus.CounterVec

	AuthFailures  prometheus.Counter
	RateLimitHits *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hakanai",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SecretsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "secrets_created_total",
				Help:      "Total number of secrets created",
			},
		),
		SecretsRetrieved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "secrets_retrieved_total",
				Help:      "Total number of secrets successfully retrieved and destroyed",
			},
		),
		SecretsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "secrets_expired_total",
				Help:      "Total number of secrets that expired unclaimed (KV TTL evictions are inferred, not observed directly)",
			},
		),
		SecretsDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "secrets_denied_total",
				Help:      "Total number of retrieval attempts denied, by reason",
			},
			[]string{"reason"},
		),
		AuthFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "auth_failures_total",
				Help:      "Total number of bearer token authentication failures",
			},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit hits, by admission kind (create/retrieve)",
			},
			[]string{"kind"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "errors_total",
				Help:      "Total number of errors, by type",
			},
			[]string{"type"},
		),
		PanicsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hakanai",
				Name:      "panics_total",
				Help:      "Total number of panics recovered",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SecretsCreated,
		m.SecretsRetrieved,
		m.SecretsExpired,
		m.SecretsDenied,
		m.AuthFailures,
		m.RateLimitHits,
		m.ErrorsTotal,
		m.PanicsTotal,
	)

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordError records an error by type.
func (m *Metrics) RecordError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordHTTPRequest records HTTP instrumentation for one request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}
