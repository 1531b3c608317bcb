// Package auth admits requests carrying a provider access token issued by the
// marketplace identity service.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/platform/httputil"
	"onboarding-gateway/pkg/requestcontext"
)

// Verifier resolves a raw access token to the provider it was issued for.
type Verifier interface {
	VerifyProvider(token string) (id.ProviderID, error)
}

const (
	msgMissingToken = "Missing or invalid Authorization header"
	msgBadToken     = "Invalid or expired token"
)

// RequireAuth rejects requests without a valid token and stores the provider
// ID on the context otherwise. The websocket event stream may send the token
// as access_token because browsers cannot set headers on an upgrade.
func RequireAuth(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := tokenFrom(r)
			if raw == "" {
				logger.WarnContext(ctx, "request without access token",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				deny(w, msgMissingToken)
				return
			}

			providerID, err := verifier.VerifyProvider(raw)
			if err != nil {
				logger.WarnContext(ctx, "access token rejected",
					"error", err,
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				deny(w, msgBadToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithProviderID(ctx, providerID)))
		})
	}
}

func deny(w http.ResponseWriter, description string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
		Error:            "unauthorized",
		ErrorDescription: description,
	})
}

func tokenFrom(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
