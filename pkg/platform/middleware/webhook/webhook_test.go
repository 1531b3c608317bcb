package webhook

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireSharedSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var reached int
	review := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached++
		w.WriteHeader(http.StatusAccepted)
	})

	cases := map[string]struct {
		configured string
		sent       *string
		status     int
	}{
		"correct secret":         {configured: "review-hook", sent: ptr("review-hook"), status: http.StatusAccepted},
		"prefix of secret":       {configured: "review-hook", sent: ptr("review"), status: http.StatusUnauthorized},
		"header absent":          {configured: "review-hook", status: http.StatusUnauthorized},
		"empty header, none set": {configured: "", sent: ptr(""), status: http.StatusUnauthorized},
		"any header, none set":   {configured: "", sent: ptr("review-hook"), status: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			reached = 0
			req := httptest.NewRequest(http.MethodPost, "/webhooks/license-review", nil)
			if tc.sent != nil {
				req.Header.Set(HeaderSecret, *tc.sent)
			}
			w := httptest.NewRecorder()
			RequireSharedSecret(tc.configured, logger)(review).ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusUnauthorized {
				assert.Zero(t, reached)
				assert.JSONEq(t, `{"error":"unauthorized","error_description":"webhook secret required"}`, w.Body.String())
			} else {
				assert.Equal(t, 1, reached)
			}
		})
	}
}

func ptr(s string) *string { return &s }
