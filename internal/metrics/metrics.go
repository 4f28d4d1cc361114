// Package metrics exposes the Prometheus collectors for upstream calls,
// HTTP requests and dashboard degradation.
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

const namespace = "familydash"

// Outcome labels for upstream calls
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds all collectors registered on its own registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	degraded         *prometheus.CounterVec
	chatRequests     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Home Assistant calls by transport, operation and outcome",
			},
			[]string{"transport", "operation", "outcome"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Home Assistant call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport", "operation"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		degraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_degraded_total",
				Help:      "Dashboard builds that fell back, by reason",
			},
			[]string{"reason"},
		),
		chatRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_requests_total",
				Help:      "Chat backend relays by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveUpstream records one Home Assistant call
func (m *Metrics) ObserveUpstream(transport, operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.upstreamRequests.WithLabelValues(transport, operation, outcome).Inc()
	m.upstreamDuration.WithLabelValues(transport, operation).Observe(d.Seconds())
}

// ObserveHTTP records one served API request
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Degraded counts a dashboard fallback; reason is "bulk" or "entity"
func (m *Metrics) Degraded(reason string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(reason).Inc()
}

// ObserveChat records one chat relay
func (m *Metrics) ObserveChat(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UpstreamRequests exposes the upstream call counter
func (m *Metrics) UpstreamRequests() *prometheus.CounterVec {
	return m.upstreamRequests
}

// DegradedBuilds exposes the dashboard fallback counter
func (m *Metrics) DegradedBuilds() *prometheus.CounterVec {
	return m.degraded
}

// ChatRequests exposes the chat relay counter
func (m *Metrics) ChatRequests() *prometheus.CounterVec {
	return m.chatRequests
}

// HTTPRequests exposes the API request counter
func (m *Metrics) HTTPRequests() *prometheus.CounterVec {
	return m.httpRequests
}
