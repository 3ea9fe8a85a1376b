package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	Ticks           prometheus.Counter
	Saves           *prometheus.CounterVec
	DurableWrites   *prometheus.CounterVec
	ProgressEvents  *prometheus.CounterVec
	Commands        *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examsim",
			Name:      "sessions_started_total",
			Help:      "Exam sessions started, by mode.",
		}, []string{"mode"}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examsim",
			Name:      "sessions_ended_total",
			Help:      "Exam sessions ended, by reason.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "examsim",
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "examsim",
			Name:      "timer_ticks_total",
			Help:      "Timer ticks applied across all sessions.",
		}),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examsim",
			Name:      "snapshot_saves_total",
			Help:      "Snapshot save attempts, by result.",
		}, []string{"result"}),
		DurableWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examsim",
			Name:      "durable_writes_total",
			Help:      "Postgres snapshot writes by the autosave worker, by result.",
		}, []string{"result"}),
		ProgressEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examsim",
			Name:      "progress_events_total",
			Help:      "Answer progress events, by delivery result.",
		}, []string{"result"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "examsim",
			Name:      "session_commands_total",
			Help:      "Session commands, by command and outcome.",
		}, []string{"command", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsStarted,
		m.SessionsEnded,
		m.ActiveSessions,
		m.Ticks,
		m.Saves,
		m.DurableWrites,
		m.ProgressEvents,
		m.Commands,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveSave records a snapshot save outcome.
func (m *Metrics) ObserveSave(err error) {
	m.Saves.WithLabelValues(Result(err)).Inc()
}

// ObserveDurableWrite records an autosave worker write outcome.
func (m *Metrics) ObserveDurableWrite(err error) {
	m.DurableWrites.WithLabelValues(Result(err)).Inc()
}
