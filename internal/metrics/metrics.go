// Package metrics holds the Prometheus instrumentation of the bridge.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ws2osc"

// Metrics groups the collectors shared by ingress, sender and bridge.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	FramesTotal       prometheus.Counter
	ParserDropped     *prometheus.CounterVec
	UnknownTags       prometheus.Counter
	OSCSends          *prometheus.CounterVec
	FailsafeTotal     prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "connections_active",
			Help:      "Number of open WebSocket connections",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections",
		}),
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "frames_total",
			Help:      "Total text frames received",
		}),
		ParserDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "dropped_total",
			Help:      "Commands dropped while parsing, by reason",
		}, []string{"reason"}),
		UnknownTags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "unknown_tags_total",
			Help:      "Tags without a channel mapping",
		}),
		OSCSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "osc",
			Name:      "sends_total",
			Help:      "OSC messages by result",
		}, []string{"result"}),
		FailsafeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "failsafe_total",
			Help:      "Fail-safe zero-outs issued after input silence",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionsActive,
			m.ConnectionsTotal,
			m.FramesTotal,
			m.ParserDropped,
			m.UnknownTags,
			m.OSCSends,
			m.FailsafeTotal,
		)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) Frame() {
	if m == nil {
		return
	}
	m.FramesTotal.Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.ParserDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) UnknownTag() {
	if m == nil {
		return
	}
	m.UnknownTags.Inc()
}

// Send records one OSC send attempt.
func (m *Metrics) Send(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.OSCSends.WithLabelValues(result).Inc()
}

func (m *Metrics) Failsafe() {
	if m == nil {
		return
	}
	m.FailsafeTotal.Inc()
}
