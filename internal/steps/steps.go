// Package steps defines the contract between onboarding step handlers and the
// checklist that aggregates them. The checklist never sees a handler's session
// or submission; it only reads the Projection.
package steps

import (
	"context"
	"fmt"
)

// ID names a checklist step.
type ID string

const (
	IDProfile     ID = "profile"
	IDIdentity    ID = "identity"
	IDLicense     ID = "license"
	IDMarketplace ID = "marketplace"
)

// Kind classifies a step error.
type Kind string

const (
	// KindValidation is rejected before any network call; status never changes.
	KindValidation Kind = "validation"
	// KindTransient is a timeout or 5xx; status stays put and polling continues.
	KindTransient Kind = "transient"
	// KindTerminalNegative is a rejected/expired/abandoned outcome.
	KindTerminalNegative Kind = "terminal_negative"
	// KindConfiguration is a missing action path or an unknown status value.
	KindConfiguration Kind = "configuration"
)

// Error is the only error shape that crosses from a handler into the checklist.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a classified error.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Projection is the read-only view of a step.
type Projection struct {
	Status         string
	Complete       bool
	ActionDisabled bool
	StatusText     string
	Err            *Error
}

// Handler drives one step's verification lifecycle.
type Handler interface {
	// ID is the step this handler backs.
	ID() ID
	// CheckStatus fetches the current status from the step's backend and
	// returns the updated projection. An error means the fetch failed; the
	// projection is left unchanged.
	CheckStatus(ctx context.Context) (Projection, error)
	// Projection returns the last known state without I/O.
	Projection() Projection
	// IsTerminal reports whether no further transition is expected without a
	// new explicit action.
	IsTerminal() bool
	// Close releases background work such as pollers.
	Close()
}

// Listener is notified after a handler's projection changed.
type Listener func(id ID)
