// Package webhook guards the endpoints the license review collaborator pushes
// results to.
package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"onboarding-gateway/pkg/platform/httputil"
	"onboarding-gateway/pkg/requestcontext"
)

const HeaderSecret = "X-Webhook-Secret"

// RequireSharedSecret admits a request only when HeaderSecret equals secret.
// With no secret configured the endpoint is closed.
func RequireSharedSecret(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := sha256.Sum256([]byte(r.Header.Get(HeaderSecret)))
			if secret != "" && subtle.ConstantTimeCompare(got[:], want[:]) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			logger.WarnContext(ctx, "webhook rejected",
				"configured", secret != "",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
				Error:            "unauthorized",
				ErrorDescription: "webhook secret required",
			})
		})
	}
}
