package watchdog

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of a single watchdog instance on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	broadcasts      *prometheus.CounterVec
	commands        *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	rosterAnomalies *prometheus.CounterVec
	punishments     *prometheus.CounterVec
	sessionState    *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "broadcasts_total",
			Help:      "Broadcast lines received, by parsed event type.",
		}, []string{"server", "type"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "commands_total",
			Help:      "Administrative commands issued, by result.",
		}, []string{"server", "command", "result"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts.",
		}, []string{"server"}),
		rosterAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "roster_anomalies_total",
			Help:      "Unauthorized admin list changes detected.",
		}, []string{"server", "kind"}),
		punishments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchdog",
			Name:      "punishments_total",
			Help:      "Punishments recorded, by label.",
		}, []string{"server", "label"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "watchdog",
			Name:      "session_state",
			Help:      "Current session state (0 disconnected to 4 authenticated).",
		}, []string{"server"}),
	}

	metrics.registry.MustRegister(metrics.broadcasts, metrics.commands, metrics.reconnects,
		metrics.rosterAnomalies, metrics.punishments, metrics.sessionState)

	return metrics
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) broadcast(server string, kind string) {
	m.broadcasts.WithLabelValues(server, kind).Inc()
}

func (m *Metrics) command(server string, command string, result string) {
	m.commands.WithLabelValues(server, command, result).Inc()
}

func (m *Metrics) reconnect(server string) {
	m.reconnects.WithLabelValues(server).Inc()
}

func (m *Metrics) rosterAnomaly(server string, kind string, count int) {
	m.rosterAnomalies.WithLabelValues(server, kind).Add(float64(count))
}

func (m *Metrics) punishment(server string, label string) {
	m.punishments.WithLabelValues(server, label).Inc()
}

func (m *Metrics) state(server string, state SessionState) {
	m.sessionState.WithLabelValues(server).Set(float64(state))
}
