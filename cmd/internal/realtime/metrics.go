package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds websocket collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	rejected    *prometheus.CounterVec
	broadcasts  prometheus.Counter
}

// NewMetrics creates the realtime collectors and registers them with reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "predixa",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Authenticated websocket connections currently open.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "predixa",
			Subsystem: "ws",
			Name:      "rooms",
			Help:      "Organization rooms with at least one member.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "predixa",
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Websocket connections rejected, by reason.",
		}, []string{"reason"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "predixa",
			Subsystem: "ws",
			Name:      "broadcast_total",
			Help:      "Room broadcasts fanned out.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.rooms, m.rejected, m.broadcasts)
	}
	return m
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) setRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) reject(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) broadcastSent() {
	if m != nil {
		m.broadcasts.Inc()
	}
}
