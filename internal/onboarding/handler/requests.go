package handler

import (
	"strings"
	"time"

	"onboarding-gateway/internal/license"
	dErrors "onboarding-gateway/pkg/domain-errors"
)

// ReviewEventRequest is the body of POST /webhooks/license-review.
type ReviewEventRequest struct {
	DocumentRef     string    `json:"document_ref"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	ReviewedAt      time.Time `json:"reviewed_at"`
}

func (r *ReviewEventRequest) Validate() error {
	r.DocumentRef = strings.TrimSpace(r.DocumentRef)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	if r.DocumentRef == "" {
		return dErrors.New(dErrors.CodeValidation, "document_ref is required")
	}
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

func (r *ReviewEventRequest) ToEvent() license.ReviewEvent {
	return license.ReviewEvent{
		DocumentRef:     r.DocumentRef,
		Status:          license.Status(r.Status),
		RejectionReason: strings.TrimSpace(r.RejectionReason),
		ReviewedAt:      r.ReviewedAt,
	}
}
