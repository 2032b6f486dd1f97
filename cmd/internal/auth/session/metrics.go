package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds session counters. A nil *Metrics records nothing.
type Metrics struct {
	issued  *prometheus.CounterVec
	refresh *prometheus.CounterVec
	replay  prometheus.Counter
	logout  prometheus.Counter
}

// NewMetrics creates the session collectors and registers them with reg (if non-nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "predixa",
			Subsystem: "auth",
			Name:      "sessions_issued_total",
			Help:      "Sessions issued, by reason (login, register).",
		}, []string{"reason"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "predixa",
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh attempts, by result.",
		}, []string{"result"}),
		replay: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "predixa",
			Subsystem: "auth",
			Name:      "refresh_replay_total",
			Help:      "Refresh tokens that verified but were no longer live.",
		}),
		logout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "predixa",
			Subsystem: "auth",
			Name:      "logout_total",
			Help:      "Logout requests.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.issued, m.refresh, m.replay, m.logout)
	}
	return m
}

func (m *Metrics) sessionIssued(reason string) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(reason).Inc()
}

func (m *Metrics) refreshResult(result string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(result).Inc()
}

func (m *Metrics) replaySuspected() {
	if m == nil {
		return
	}
	m.replay.Inc()
}

func (m *Metrics) loggedOut() {
	if m == nil {
		return
	}
	m.logout.Inc()
}
