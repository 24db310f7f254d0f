package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. Each instance owns its
// registry so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	ResolutionsTotal        *prometheus.CounterVec
	ResolutionDuration      *prometheus.HistogramVec
	ProviderAttemptsTotal   *prometheus.CounterVec
	ProviderAttemptDuration *prometheus.HistogramVec
	CacheLookupsTotal       *prometheus.CounterVec
	RequestsTotal           *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicstreamer_resolutions_total",
				Help: "Total number of stream resolutions by outcome",
			},
			[]string{"outcome"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicstreamer_resolution_duration_seconds",
				Help:    "Time spent resolving a stream, cache lookups included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		ProviderAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicstreamer_provider_attempts_total",
				Help: "Total number of provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicstreamer_provider_attempt_duration_seconds",
				Help:    "Latency of individual provider attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicstreamer_cache_lookups_total",
				Help: "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicstreamer_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.ProviderAttemptsTotal,
		m.ProviderAttemptDuration,
		m.CacheLookupsTotal,
		m.RequestsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordResolution(outcome string, duration time.Duration) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
	m.ResolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) RecordProviderAttempt(provider, outcome string, duration time.Duration) {
	m.ProviderAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	m.ProviderAttemptDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRequest(route string, code int) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
