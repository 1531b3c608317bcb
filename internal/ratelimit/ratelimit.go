// Package ratelimit caps how often a provider can hit the onboarding
// endpoints that cost an upstream call: opening a verification session and
// uploading a license document. Both counters use a sliding window so a burst
// straddling a window boundary is still counted once.
package ratelimit

import (
	"context"
	"time"
)

// Class groups endpoints that share one quota.
type Class string

const (
	ClassIdentitySession Class = "identity_session"
	ClassLicenseUpload   Class = "license_upload"
)

// Policy is the quota applied to one class.
type Policy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicies returns the quotas used when none are configured.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassIdentitySession: {Limit: 10, Window: time.Hour},
		ClassLicenseUpload:   {Limit: 20, Window: time.Hour},
	}
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set when not allowed
}

// Store counts requests per key within a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// key builds the counter key for one provider and class.
func key(class Class, subject string) string {
	return "ratelimit:" + string(class) + ":" + subject
}

// retryAfterSeconds rounds up so a client never retries a moment too early.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
