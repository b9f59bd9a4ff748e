// Package metrics holds the Prometheus collectors for the cache session and finder.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stackfind"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	TransportErrors prometheus.Counter
	Searches        *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Requests answered from the response cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Requests that went to the network.",
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transport_errors_total",
			Help:      "Network attempts that failed before a response was read.",
		}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "finder",
			Name:      "searches_total",
			Help:      "Search operations by outcome.",
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "finder",
			Name:      "search_duration_seconds",
			Help:      "Wall time of a full two-stage search.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.TransportErrors,
		m.Searches,
		m.SearchDuration,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hit counts a cache hit
func (m *Metrics) Hit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

// Miss counts a cache miss
func (m *Metrics) Miss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

// TransportError counts a failed network attempt
func (m *Metrics) TransportError() {
	if m != nil {
		m.TransportErrors.Inc()
	}
}

// ObserveSearch records one finished search
func (m *Metrics) ObserveSearch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(seconds)
}
