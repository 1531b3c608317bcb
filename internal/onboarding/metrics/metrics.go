package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for onboarding sessions and the checklist.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionsEvicted  prometheus.Counter
	Refetches        *prometheus.CounterVec
	Completions      prometheus.Counter
	GateRearms       prometheus.Counter
	CompletionEvents *prometheus.CounterVec
	StreamClients    prometheus.Gauge
}

// New registers the onboarding metrics with the default registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_active_sessions",
			Help: "Providers with a live checklist session in this process",
		}),
		SessionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_sessions_evicted_total",
			Help: "Checklist sessions closed after being idle",
		}),
		Refetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_checklist_refetches_total",
			Help: "Checklist refetches by outcome",
		}, []string{"outcome"}),
		Completions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_completions_total",
			Help: "Times a checklist reached 100% of required steps",
		}),
		GateRearms: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_completion_gate_rearms_total",
			Help: "Times a completed checklist regressed and re-armed the completion signal",
		}),
		CompletionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_completion_events_total",
			Help: "onboarding.completed events published by outcome",
		}, []string{"outcome"}),
		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_stream_clients",
			Help: "Connected checklist websocket clients",
		}),
	}
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) IncEvicted(n int) {
	if m == nil {
		return
	}
	m.SessionsEvicted.Add(float64(n))
}

func (m *Metrics) IncRefetch(outcome string) {
	if m == nil {
		return
	}
	m.Refetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCompletion() {
	if m == nil {
		return
	}
	m.Completions.Inc()
}

func (m *Metrics) IncGateRearm() {
	if m == nil {
		return
	}
	m.GateRearms.Inc()
}

func (m *Metrics) IncCompletionEvent(outcome string) {
	if m == nil {
		return
	}
	m.CompletionEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncStreamClients() {
	if m == nil {
		return
	}
	m.StreamClients.Inc()
}

func (m *Metrics) DecStreamClients() {
	if m == nil {
		return
	}
	m.StreamClients.Dec()
}
