// Package store remembers which providers have already finished onboarding.
package store

import "onboarding-gateway/internal/onboarding"

var (
	_ onboarding.CompletionStore = (*InMemory)(nil)
	_ onboarding.CompletionStore = (*Redis)(nil)
)
