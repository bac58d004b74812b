// Package metrics provides Prometheus metrics for the command center.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway client.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ReconnectsTotal prometheus.Counter
	ChatEventsTotal *prometheus.CounterVec
	Connected       prometheus.Gauge
	MemoryLookups   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scc_gateway_requests_total",
				Help: "Total gateway requests by method and status.",
			},
			[]string{"method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scc_gateway_request_duration_seconds",
				Help:    "Gateway request round-trip duration by method.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scc_gateway_reconnects_total",
				Help: "Total reconnect attempts scheduled after abnormal closes.",
			},
		),
		ChatEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scc_gateway_chat_events_total",
				Help: "Total normalized chat events by kind.",
			},
			[]string{"kind"},
		),
		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scc_gateway_connected",
				Help: "1 while the gateway handshake is complete, 0 otherwise.",
			},
		),
		MemoryLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scc_memory_lookups_total",
				Help: "Total memory side-channel lookups by operation and status.",
			},
			[]string{"op", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.ReconnectsTotal)
	reg.MustRegister(m.ChatEventsTotal)
	reg.MustRegister(m.Connected)
	reg.MustRegister(m.MemoryLookups)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(method, status string) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
}

// ObserveRequestDuration records request round-trip duration.
func (m *Metrics) ObserveRequestDuration(method string, seconds float64) {
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordReconnect increments the reconnect counter.
func (m *Metrics) RecordReconnect() {
	m.ReconnectsTotal.Inc()
}

// RecordChatEvent increments the chat event counter.
func (m *Metrics) RecordChatEvent(kind string) {
	m.ChatEventsTotal.WithLabelValues(kind).Inc()
}

// SetConnected sets the connection gauge.
func (m *Metrics) SetConnected(connected bool) {
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// RecordMemoryLookup increments the memory lookup counter.
func (m *Metrics) RecordMemoryLookup(op, status string) {
	m.MemoryLookups.WithLabelValues(op, status).Inc()
}
