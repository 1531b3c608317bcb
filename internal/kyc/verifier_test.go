package kyc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-gateway/internal/providers"
	"onboarding-gateway/pkg/platform/circuit"
)

func newTestVerifier(t *testing.T, handler http.HandlerFunc, opts ...HTTPVerifierOption) *HTTPVerifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPVerifier("kyc-test", srv.URL, "secret-key", time.Second, opts...)
}

func TestHTTPVerifier_CreateSession(t *testing.T) {
	expires := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("authorization_url", func(t *testing.T) {
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/kyc/create-session", r.URL.Path)
			assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
			var body CreateSessionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "provider-1", body.Reference)
			assert.Equal(t, "desktop", body.Platform)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"authorization_url": "https://verify.example.com/a/1",
				"session_id":        "s-1",
				"expires_at":        expires,
			})
		})

		session, err := v.CreateSession(context.Background(), CreateSessionRequest{
			Reference: "provider-1",
			ReturnURL: "https://app.example.com/return",
			Platform:  "desktop",
		})
		require.NoError(t, err)
		assert.Equal(t, "s-1", session.ID)
		assert.Equal(t, "https://verify.example.com/a/1", session.ExternalURL)
		assert.True(t, expires.Equal(session.ExpiresAt))
		assert.Equal(t, StatusPending, session.Status)
	})

	t.Run("verification_url fallback", func(t *testing.T) {
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"verification_url":"https://verify.example.com/v/2","session_id":"s-2"}`))
		})

		session, err := v.CreateSession(context.Background(), CreateSessionRequest{Reference: "p"})
		require.NoError(t, err)
		assert.Equal(t, "https://verify.example.com/v/2", session.ExternalURL)
	})

	t.Run("missing url is bad data", func(t *testing.T) {
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"session_id":"s-3"}`))
		})

		_, err := v.CreateSession(context.Background(), CreateSessionRequest{Reference: "p"})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorBadData, providers.GetCategory(err))
		assert.False(t, providers.IsRetryable(err))
	})

	t.Run("5xx is a retryable outage", func(t *testing.T) {
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := v.CreateSession(context.Background(), CreateSessionRequest{Reference: "p"})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorProviderOutage, providers.GetCategory(err))
		assert.True(t, providers.IsRetryable(err))
	})
}

func TestHTTPVerifier_FetchStatus(t *testing.T) {
	t.Run("decodes status", func(t *testing.T) {
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/kyc/status", r.URL.Path)
			assert.Equal(t, "provider 1", r.URL.Query().Get("reference"))
			_, _ = w.Write([]byte(`{"status":"Rejected","details":"selfie mismatch"}`))
		})

		report, err := v.FetchStatus(context.Background(), "provider 1")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, report.Status)
		assert.Equal(t, "selfie mismatch", report.Details)
	})

	t.Run("unknown status passes through", func(t *testing.T) {
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"manual_hold"}`))
		})

		report, err := v.FetchStatus(context.Background(), "p")
		require.NoError(t, err)
		assert.False(t, report.Status.IsKnown())
	})

	t.Run("not found is not treated as not started", func(t *testing.T) {
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := v.FetchStatus(context.Background(), "p")
		require.Error(t, err)
		assert.Equal(t, providers.ErrorNotFound, providers.GetCategory(err))
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
			<-block
		})
		defer close(block)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := v.FetchStatus(ctx, "p")
		require.Error(t, err)
		assert.Equal(t, providers.ErrorTimeout, providers.GetCategory(err))
	})
}

func TestHTTPVerifier_BreakerOpensOnRepeatedOutage(t *testing.T) {
	v := newTestVerifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithBreaker(circuit.New("kyc-test", circuit.WithFailureThreshold(2))))

	for i := 0; i < 2; i++ {
		_, _ = v.FetchStatus(context.Background(), "p")
	}
	assert.True(t, v.Breaker().IsOpen())

	err := v.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrCircuitOpen)
}

func TestPlatformFromUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"empty", "", ""},
		{"android", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Mobile Safari/537.36", "mobile"},
		{"desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36", "desktop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlatformFromUserAgent(tt.ua))
		})
	}
}
