// Package request assigns every request an ID that follows it through logs.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"onboarding-gateway/pkg/requestcontext"
)

// HeaderRequestID is read from callers and echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// RequestID reuses a caller-supplied ID when present, otherwise generates one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
