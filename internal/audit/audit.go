// Package audit keeps a per-provider trail of onboarding actions and step
// transitions. Recording is best effort: a full buffer or a failing store is
// logged and never fails the onboarding request that produced the event.
package audit

import (
	"context"
	"time"

	id "onboarding-gateway/pkg/domain"
)

// Action names what happened.
type Action string

const (
	ActionIdentityStarted    Action = "identity_session_started"
	ActionLicenseUploaded    Action = "license_uploaded"
	ActionReviewReceived     Action = "license_review_received"
	ActionProfileUpdated     Action = "profile_updated"
	ActionListingPublished   Action = "listing_published"
	ActionStepTransitioned   Action = "step_transitioned"
	ActionOnboardingComplete Action = "onboarding_completed"
)

// Event is one audit record. Step, From and To are set for step transitions;
// Outcome carries the action's result where one exists.
type Event struct {
	ID         string
	ProviderID id.ProviderID
	Action     Action
	Step       string
	From       string
	To         string
	Outcome    string
	RequestID  string
	Timestamp  time.Time
}

// Store persists events.
type Store interface {
	Append(ctx context.Context, ev Event) error
	ListByProvider(ctx context.Context, providerID id.ProviderID, limit int) ([]Event, error)
}
