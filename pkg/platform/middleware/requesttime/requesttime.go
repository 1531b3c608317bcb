// Package requesttime pins one timestamp per request so that every record
// written while handling it (checklist updates, audit events, rate-limit
// windows) agrees on "now".
package requesttime

import (
	"net/http"
	"time"

	"onboarding-gateway/pkg/requestcontext"
)

// Middleware stamps requests with the wall clock in UTC.
var Middleware = WithClock(time.Now)

// WithClock builds the middleware around clock, which tests replace.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), clock().UTC())))
		})
	}
}
