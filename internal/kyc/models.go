package kyc

import (
	"time"

	id "onboarding-gateway/pkg/domain"
)

// Status is the identity verification state reported for a provider.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusVerified   Status = "verified"
	StatusRejected   Status = "rejected"
	StatusExpired    Status = "expired"
	StatusAbandoned  Status = "abandoned"
	StatusError      Status = "error"
)

// IsKnown reports whether s is one of the defined statuses.
func (s Status) IsKnown() bool {
	switch s {
	case StatusNotStarted, StatusPending, StatusInProgress, StatusVerified,
		StatusRejected, StatusExpired, StatusAbandoned, StatusError:
		return true
	}
	return false
}

// StopsPolling reports whether the poller should stop on s. Expired and
// abandoned sessions can still be resumed at the provider, so they keep the
// poller alive until the caller tears it down or starts a new session.
func (s Status) StopsPolling() bool {
	return s == StatusVerified || s == StatusRejected || s == StatusError
}

// IsTerminal reports whether s needs a new explicit action to move again.
func (s Status) IsTerminal() bool {
	return s.StopsPolling() || s == StatusExpired || s == StatusAbandoned
}

// InFlight reports whether a session is being created or the user is at the provider.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusInProgress
}

// Reopenable reports whether the user may start a new session from s.
func (s Status) Reopenable() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusAbandoned
}

// Text is the label shown on the checklist.
func (s Status) Text() string {
	switch s {
	case StatusNotStarted:
		return "Pendiente"
	case StatusPending:
		return "Preparando verificación"
	case StatusInProgress:
		return "Verificación en curso"
	case StatusVerified:
		return "Verificado"
	case StatusRejected:
		return "Verificación rechazada"
	case StatusExpired:
		return "La sesión de verificación expiró"
	case StatusAbandoned:
		return "Verificación sin terminar"
	case StatusError:
		return "No pudimos completar la verificación"
	default:
		return "Estado desconocido"
	}
}

// Session is one verification attempt at the external provider. It is
// single-use: it is invalid once ExpiresAt passes or the attempt resolves.
type Session struct {
	ID          string        `json:"session_id"`
	ProviderID  id.ProviderID `json:"provider_id"`
	ExternalURL string        `json:"external_url"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Expired reports whether the session can no longer be used at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// CreateSessionRequest is sent to the verification provider.
type CreateSessionRequest struct {
	Reference string `json:"reference"`
	ReturnURL string `json:"return_url"`
	Platform  string `json:"platform,omitempty"`
}

// StatusReport is the provider's view of a provider's verification.
type StatusReport struct {
	Status     Status    `json:"status"`
	Details    string    `json:"details,omitempty"`
	LastUpdate time.Time `json:"last_update,omitempty"`
}

// StartRequest carries what the caller knows when starting verification.
type StartRequest struct {
	ReturnURL string
	UserAgent string
}

// StartResult tells the caller where to send the user.
type StartResult struct {
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
	// Reused is true when a session was already in flight and no new one was created.
	Reused bool
}
