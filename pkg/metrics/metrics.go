// Package metrics exposes Prometheus instrumentation for the tunnel core.
//
// All methods are safe on a nil *Metrics so callers can leave
// instrumentation unset.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "irctunnel"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	State             *prometheus.GaugeVec
	ReconnectAttempts prometheus.Counter
	ReconnectGiveUps  prometheus.Counter
	HeartbeatTimeouts *prometheus.CounterVec
	LinesParsed       prometheus.Counter
	LinesMalformed    prometheus.Counter
	ControlLines      *prometheus.CounterVec
	LinesSent         prometheus.Counter
	CommandsRejected  *prometheus.CounterVec
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts started.",
		}),
		ReconnectGiveUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Times auto-reconnect was disabled after too many attempts.",
		}),
		HeartbeatTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_timeouts_total",
			Help:      "Heartbeat watchdog actions by kind (soft close request, hard local disconnect).",
		}, []string{"kind"}),
		LinesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_parsed_total",
			Help:      "Inbound protocol lines decoded.",
		}),
		LinesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_malformed_total",
			Help:      "Inbound protocol lines without a command.",
		}),
		ControlLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_lines_total",
			Help:      "Gateway control lines by kind.",
		}, []string{"kind"}),
		LinesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_sent_total",
			Help:      "Outbound protocol lines handed to the transport.",
		}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Slash commands rejected with a usage error, by keyword.",
		}, []string{"command"}),
	}

	m.registry.MustRegister(
		m.State,
		m.ReconnectAttempts,
		m.ReconnectGiveUps,
		m.HeartbeatTimeouts,
		m.LinesParsed,
		m.LinesMalformed,
		m.ControlLines,
		m.LinesSent,
		m.CommandsRejected,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetState marks current as the only active state.
func (m *Metrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) ReconnectExhausted() {
	if m == nil {
		return
	}
	m.ReconnectGiveUps.Inc()
}

// HeartbeatTimeout records a watchdog action; kind is "soft" or "hard".
func (m *Metrics) HeartbeatTimeout(kind string) {
	if m == nil {
		return
	}
	m.HeartbeatTimeouts.WithLabelValues(kind).Inc()
}

func (m *Metrics) LineParsed(malformed bool) {
	if m == nil {
		return
	}
	m.LinesParsed.Inc()
	if malformed {
		m.LinesMalformed.Inc()
	}
}

func (m *Metrics) ControlLine(kind string) {
	if m == nil {
		return
	}
	m.ControlLines.WithLabelValues(kind).Inc()
}

func (m *Metrics) LineSent() {
	if m == nil {
		return
	}
	m.LinesSent.Inc()
}

func (m *Metrics) CommandRejected(command string) {
	if m == nil {
		return
	}
	if command == "" {
		command = "invalid"
	}
	m.CommandsRejected.WithLabelValues(command).Inc()
}
