// Package metrics holds the prometheus collectors of the control plane.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rtcserver"

type Metrics struct {
	Sessions        *prometheus.GaugeVec
	PeerConnections prometheus.Gauge
	Observers       prometheus.Gauge
	ObserverClosed  *prometheus.CounterVec
	Events          *prometheus.CounterVec
	EngineErrors    *prometheus.CounterVec
	TeardownLeaks   prometheus.Counter
	StatsFaults     prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions in the registry by state.",
		}, []string{"state"}),
		PeerConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_connections",
			Help:      "Live peer connections.",
		}),
		Observers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Open observer streams.",
		}),
		ObserverClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observer_closed_total",
			Help:      "Observer streams closed, by reason.",
		}, []string{"reason"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_events_total",
			Help:      "Engine events routed by the fan-out, by kind.",
		}, []string{"kind"}),
		EngineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Failed engine calls, by operation.",
		}, []string{"op"}),
		TeardownLeaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_leaks_total",
			Help:      "Engine handles whose release failed or timed out.",
		}),
		StatsFaults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_faults_total",
			Help:      "Peer connections whose stats could not be read.",
		}),
	}
}

func (m *Metrics) SessionTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.Sessions.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.Sessions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) PeerConnectionsAdd(n int) {
	if m == nil {
		return
	}
	m.PeerConnections.Add(float64(n))
}

func (m *Metrics) ObserverOpened() {
	if m == nil {
		return
	}
	m.Observers.Inc()
}

func (m *Metrics) ObserverDone(reason string) {
	if m == nil {
		return
	}
	m.Observers.Dec()
	m.ObserverClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) EngineError(op string) {
	if m == nil {
		return
	}
	m.EngineErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) TeardownLeak() {
	if m == nil {
		return
	}
	m.TeardownLeaks.Inc()
}

func (m *Metrics) StatsFault() {
	if m == nil {
		return
	}
	m.StatsFaults.Inc()
}
