package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "review_draft"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	Saves            *prometheus.CounterVec
	StaleCompletions prometheus.Counter
	LoadFailures     prometheus.Counter
	DeleteFailures   prometheus.Counter
	ActiveSessions   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Draft save attempts by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		StaleCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_completions_total",
			Help:      "Store completions discarded because a newer operation superseded them.",
		}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Draft loads that failed and fell back to empty content.",
		}),
		DeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delete_failures_total",
			Help:      "Draft deletes that failed after a decision was finalized.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Editing surfaces currently open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Saves, m.StaleCompletions, m.LoadFailures, m.DeleteFailures, m.ActiveSessions)
	}
	return m
}

func (m *Metrics) ObserveSave(trigger string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Saves.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) Stale() {
	if m != nil {
		m.StaleCompletions.Inc()
	}
}

func (m *Metrics) LoadFailed() {
	if m != nil {
		m.LoadFailures.Inc()
	}
}

func (m *Metrics) DeleteFailed() {
	if m != nil {
		m.DeleteFailures.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}
