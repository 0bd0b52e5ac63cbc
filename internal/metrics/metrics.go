// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Token state gauge values.
const (
	TokenStateEmpty   = 0
	TokenStateValid   = 1
	TokenStateExpired = 2
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	UpstreamTotal     *prometheus.CounterVec
	TokenRefreshTotal *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of gateway requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Request processing duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		UpstreamTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_requests_total",
				Help: "Upstream calls by upstream and outcome.",
			},
			[]string{"upstream", "outcome"},
		),
		TokenRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_token_refresh_total",
				Help: "Access token refresh attempts by result.",
			},
			[]string{"result"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.UpstreamTotal)
	reg.MustRegister(m.TokenRefreshTotal)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, code string) {
	m.RequestsTotal.WithLabelValues(route, code).Inc()
}

// ObserveDuration records request duration.
func (m *Metrics) ObserveDuration(route string, seconds float64) {
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordUpstream counts an upstream call outcome ("ok" or an error kind).
func (m *Metrics) RecordUpstream(upstream, outcome string) {
	m.UpstreamTotal.WithLabelValues(upstream, outcome).Inc()
}

// RecordTokenRefresh counts a refresh attempt.
func (m *Metrics) RecordTokenRefresh(result string) {
	m.TokenRefreshTotal.WithLabelValues(result).Inc()
}

// TrackTokenState exposes gateway_token_state, read from state at scrape time.
func (m *Metrics) TrackTokenState(state func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "gateway_token_state",
			Help: "Cached access token state (0 empty, 1 valid, 2 expired).",
		},
		state,
	))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
