// Package testutil holds helpers shared by handler and integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/platform/httputil"
	"onboarding-gateway/pkg/requestcontext"
)

func NewJSONRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(payload), "encode %s %s payload", method, target)
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithProvider stands in for the auth middleware.
func WithProvider(req *http.Request, providerID id.ProviderID) *http.Request {
	return req.WithContext(requestcontext.WithProviderID(req.Context(), providerID))
}

func DoRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func UnmarshalResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	t.Helper()
	out := new(T)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "decode body %q", rec.Body.String())
	return out
}

// AssertStatusAndError checks an error reply and returns it for further
// assertions on the description.
func AssertStatusAndError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) *httputil.ErrorResponse {
	t.Helper()
	assert.Equal(t, status, rec.Code, "status for body %q", rec.Body.String())
	resp := UnmarshalResponse[httputil.ErrorResponse](t, rec)
	assert.Equal(t, code, resp.Error)
	return resp
}
