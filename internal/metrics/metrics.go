// Package metrics exposes relay counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/garage-relay/internal/events"
)

// Metrics holds the relay's Prometheus collectors on a private registry.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pulses        *prometheus.CounterVec
	pulseDuration prometheus.Histogram
	registrations prometheus.Counter
	wsClients     prometheus.Gauge
}

// New creates and registers the relay metrics plus the Go runtime and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		pulses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_pulses_total",
			Help: "Total number of relay pulses by result",
		}, []string{"result"}),
		pulseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "garage_pulse_duration_seconds",
			Help:    "Wall time of relay pulses including the hold",
			Buckets: []float64{0.05, 0.1, 0.2, 0.25, 0.5, 1, 2, 5},
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "garage_registrations_total",
			Help: "Total number of access keys issued",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "garage_ws_clients_connected",
			Help: "Current number of connected WebSocket clients",
		}),
	}

	registry.MustRegister(
		m.pulses,
		m.pulseDuration,
		m.registrations,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Name implements events.Sink.
func (*Metrics) Name() string { return "prometheus" }

// Handle implements events.Sink.
func (m *Metrics) Handle(_ context.Context, e events.Event) error {
	if m == nil {
		return nil
	}
	switch e.Type {
	case events.DoorToggled:
		m.pulses.WithLabelValues("ok").Inc()
		m.pulseDuration.Observe(e.Duration().Seconds())
	case events.DoorFailed:
		m.pulses.WithLabelValues("failed").Inc()
	case events.UserRegistered:
		m.registrations.Inc()
	}
	return nil
}

// ClientConnected increments the connected WebSocket clients gauge.
func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

// ClientDisconnected decrements the connected WebSocket clients gauge.
func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}
