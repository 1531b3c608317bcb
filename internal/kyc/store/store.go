// Package store keeps the active identity session marker per provider.
package store

import "onboarding-gateway/internal/kyc"

// ErrNotFound is returned when a provider has no active session.
var ErrNotFound = kyc.ErrSessionNotFound

var (
	_ kyc.SessionStore = (*InMemory)(nil)
	_ kyc.SessionStore = (*Redis)(nil)
)
