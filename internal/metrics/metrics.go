// Package metrics exposes Prometheus collectors for the HTTP layer, searches and SOS signals.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medlink"

// Search outcomes.
const (
	SearchShort       = "short_query"
	SearchExact       = "exact"
	SearchAlternative = "alternative"
	SearchEmpty       = "empty"
	SearchError       = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SearchesTotal       *prometheus.CounterVec
	SOSSignalsTotal     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	m.SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Medicine searches by outcome",
		},
		[]string{"outcome"},
	)

	m.SOSSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sos_signals_total",
			Help:      "Distress signals created and resolved",
		},
		[]string{"action"},
	)

	registry.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration, m.SearchesTotal, m.SOSSignalsTotal)
	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordSearch(outcome string) {
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}

// RecordSOS counts a signal lifecycle action ("created" or "resolved").
func (m *Metrics) RecordSOS(action string) {
	m.SOSSignalsTotal.WithLabelValues(action).Inc()
}
