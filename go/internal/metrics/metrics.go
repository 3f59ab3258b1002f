// Package metrics collects auction and transport counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector defines what the room, relay and gateway report.
type Collector interface {
	RecordBid(outcome string)
	RecordResolution(outcome string)
	SetRoomsActive(n int)
	SetConnections(n int)
	RecordRelayMessage(kind, direction string)
}

// Bid outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeSold     = "sold"
	OutcomeUnsold   = "unsold"
)

// NoOp is a no-op implementation for when metrics aren't needed
type NoOp struct{}

func (NoOp) RecordBid(string)                  {}
func (NoOp) RecordResolution(string)           {}
func (NoOp) SetRoomsActive(int)                {}
func (NoOp) SetConnections(int)                {}
func (NoOp) RecordRelayMessage(string, string) {}

// Prometheus implements Collector on its own registry.
type Prometheus struct {
	registry      *prometheus.Registry
	bids          *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	roomsActive   prometheus.Gauge
	connections   prometheus.Gauge
	relayMessages *prometheus.CounterVec
}

// NewPrometheus registers the bidroom collectors plus the Go runtime and
// process collectors.
func NewPrometheus() *Prometheus {
	m := &Prometheus{
		registry: prometheus.NewRegistry(),
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidroom_bids_total",
			Help: "Bids handled, by outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidroom_items_resolved_total",
			Help: "Items resolved, by outcome.",
		}, []string{"outcome"}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bidroom_rooms_active",
			Help: "Room replicas running on this instance.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bidroom_ws_connections",
			Help: "Open WebSocket connections.",
		}),
		relayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidroom_relay_messages_total",
			Help: "Relay messages, by kind and direction.",
		}, []string{"kind", "direction"}),
	}
	m.registry.MustRegister(
		m.bids,
		m.resolutions,
		m.roomsActive,
		m.connections,
		m.relayMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Prometheus) RecordBid(outcome string) {
	m.bids.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) RecordResolution(outcome string) {
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Prometheus) SetRoomsActive(n int) {
	m.roomsActive.Set(float64(n))
}

func (m *Prometheus) SetConnections(n int) {
	m.connections.Set(float64(n))
}

func (m *Prometheus) RecordRelayMessage(kind, direction string) {
	m.relayMessages.WithLabelValues(kind, direction).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Prometheus) Registry() *prometheus.Registry {
	return m.registry
}
