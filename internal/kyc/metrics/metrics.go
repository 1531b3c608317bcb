package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity verification.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	SessionsCreated     prometheus.Counter
	SessionsReused      prometheus.Counter
	SessionFailures     *prometheus.CounterVec
	StatusChecks        *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	StaleResponses      prometheus.Counter
	ProviderCallLatency *prometheus.HistogramVec
}

// New registers the identity metrics with the default registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_kyc_sessions_created_total",
			Help: "Verification sessions opened at the identity provider",
		}),
		SessionsReused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_kyc_sessions_reused_total",
			Help: "Start requests answered with an in-flight session",
		}),
		SessionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_kyc_session_failures_total",
			Help: "Failed session creations by error category",
		}, []string{"category"}),
		StatusChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_kyc_status_checks_total",
			Help: "Status fetches by outcome",
		}, []string{"outcome"}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_kyc_status_transitions_total",
			Help: "Applied status changes by target status",
		}, []string{"status"}),
		StaleResponses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_kyc_stale_responses_total",
			Help: "Status responses discarded because a newer one was already applied",
		}),
		ProviderCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_kyc_provider_call_duration_seconds",
			Help:    "Latency of identity provider calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

func (m *Metrics) IncSessionReused() {
	if m == nil {
		return
	}
	m.SessionsReused.Inc()
}

func (m *Metrics) IncSessionFailure(category string) {
	if m == nil {
		return
	}
	m.SessionFailures.WithLabelValues(category).Inc()
}

// IncStatusCheck records a status fetch; outcome is "ok" or "error".
func (m *Metrics) IncStatusCheck(outcome string) {
	if m == nil {
		return
	}
	m.StatusChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTransition(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncStaleResponse() {
	if m == nil {
		return
	}
	m.StaleResponses.Inc()
}

// ObserveProviderCall records the duration of a provider call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProviderCall(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderCallLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
