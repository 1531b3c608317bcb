package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for license submissions.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	Uploads            *prometheus.CounterVec
	ValidationFailures prometheus.Counter
	ReviewEvents       *prometheus.CounterVec
	Outcomes           *prometheus.CounterVec
	UploadDuration     prometheus.Histogram
}

// New registers the license metrics with the default registry. Call once per process.
func New() *Metrics {
	return &Metrics{
		Uploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_license_uploads_total",
			Help: "License uploads sent to the review service by outcome",
		}, []string{"outcome"}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_license_validation_failures_total",
			Help: "Uploads rejected locally before any network call",
		}),
		ReviewEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_license_review_events_total",
			Help: "Review events pushed by the review service by result",
		}, []string{"result"}),
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_license_outcomes_total",
			Help: "Submission status changes by target status",
		}, []string{"status"}),
		UploadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboarding_license_upload_duration_seconds",
			Help:    "Duration of uploads to the review service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) IncUpload(outcome string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncValidationFailure() {
	if m == nil {
		return
	}
	m.ValidationFailures.Inc()
}

// IncReviewEvent records a pushed event; result is "applied", "ignored" or "unknown".
func (m *Metrics) IncReviewEvent(result string) {
	if m == nil {
		return
	}
	m.ReviewEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) IncOutcome(status string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(status).Inc()
}

// ObserveUpload records the duration of an upload.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveUpload(start time.Time) {
	if m == nil {
		return
	}
	m.UploadDuration.Observe(time.Since(start).Seconds())
}
