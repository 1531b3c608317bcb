// Package license tracks professional-license submissions: local document
// checks, automated classification and the manual review that may follow.
package license

import (
	"time"

	id "onboarding-gateway/pkg/domain"
)

// Status is the review state of one submission.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessingAI Status = "processing_ai"
	StatusInReview     Status = "in_review"
	StatusVerified     Status = "verified"
	StatusRejected     Status = "rejected"
)

// NotSubmitted is the projected status when no submission exists.
const NotSubmitted = "not_submitted"

// DefaultRejectionReason replaces an empty reason on a rejected submission.
const DefaultRejectionReason = "document illegible"

func (s Status) IsKnown() bool {
	switch s {
	case StatusPending, StatusProcessingAI, StatusInReview, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether only a new upload (or an explicit rejection of a
// verified license) can move the submission again.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// CanTransitionTo enforces the review state machine. A verified license only
// moves to rejected, and only through an explicit review event.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessingAI
	case StatusProcessingAI:
		return next == StatusVerified || next == StatusInReview || next == StatusRejected || next == StatusPending
	case StatusInReview:
		return next == StatusVerified || next == StatusRejected
	case StatusVerified:
		return next == StatusRejected
	default:
		return false
	}
}

// Text is the checklist label for s.
func (s Status) Text() string {
	switch s {
	case StatusPending:
		return "Documento recibido"
	case StatusProcessingAI:
		return "Analizando documento"
	case StatusInReview:
		return "En Revisión"
	case StatusVerified:
		return "Verificado"
	case StatusRejected:
		return "Rechazado"
	default:
		return "Estado desconocido"
	}
}

// Submission is one uploaded license document. A new upload supersedes the
// previous submission; superseded rows are kept for audit.
type Submission struct {
	ID              id.SubmissionID
	ProviderID      id.ProviderID
	DocumentRef     string
	ContentType     string
	Digest          string
	Status          Status
	RejectionReason string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
	SupersededAt    *time.Time
}

// Document is an upload as received from the caller.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReviewResult is what the review service reports for a document.
type ReviewResult struct {
	Status          Status `json:"status"`
	RejectionReason string `json:"rejectionReason,omitempty"`
}

// ReviewEvent is pushed by the review service when a manual review finishes.
type ReviewEvent struct {
	DocumentRef     string    `json:"document_ref"`
	Status          Status    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	ReviewedAt      time.Time `json:"reviewed_at"`
}
