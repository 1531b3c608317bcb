package kyc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding-gateway/internal/providers"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/platform/circuit"
	"onboarding-gateway/pkg/platform/sentinel"
)

// Verifier is the contract with the external identity verification provider.
type Verifier interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	FetchStatus(ctx context.Context, reference string) (StatusReport, error)
}

// SessionStore persists the active session marker so a restarted gateway can
// resume polling instead of opening a second session.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	FindActive(ctx context.Context, providerID id.ProviderID) (*Session, error)
	Delete(ctx context.Context, providerID id.ProviderID) error
}

// ErrSessionNotFound is returned by a SessionStore with no active session.
var ErrSessionNotFound = fmt.Errorf("kyc session %w", sentinel.ErrNotFound)

const maxResponseBytes = 64 << 10

// HTTPVerifier talks JSON over HTTP to the verification provider.
type HTTPVerifier struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuit.Breaker
	tracer  trace.Tracer
	logger  *slog.Logger
}

// HTTPVerifierOption configures an HTTPVerifier.
type HTTPVerifierOption func(*HTTPVerifier)

// WithHTTPClient replaces the default client (tests point it at httptest servers).
func WithHTTPClient(c *http.Client) HTTPVerifierOption {
	return func(v *HTTPVerifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithVerifierLogger logs breaker transitions.
func WithVerifierLogger(l *slog.Logger) HTTPVerifierOption {
	return func(v *HTTPVerifier) {
		v.logger = l
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) HTTPVerifierOption {
	return func(v *HTTPVerifier) {
		if b != nil {
			v.breaker = b
		}
	}
}

// NewHTTPVerifier builds a client for the provider at baseURL.
func NewHTTPVerifier(id, baseURL, apiKey string, timeout time.Duration, opts ...HTTPVerifierOption) *HTTPVerifier {
	v := &HTTPVerifier{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New(id),
		tracer:  otel.Tracer("onboarding-gateway/kyc"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *HTTPVerifier) ID() string                { return v.id }
func (v *HTTPVerifier) Kind() providers.Kind      { return providers.KindIdentity }
func (v *HTTPVerifier) Breaker() *circuit.Breaker { return v.breaker }

// Health pings the provider. An open breaker is reported without a call.
func (v *HTTPVerifier) Health(ctx context.Context) error {
	if v.breaker.IsOpen() {
		return providers.NewProviderError(providers.ErrorProviderOutage, v.id, "too many consecutive failures", providers.ErrCircuitOpen)
	}
	_, _, err := v.do(ctx, http.MethodGet, "/health", nil)
	return err
}

type createSessionResponse struct {
	AuthorizationURL string    `json:"authorization_url"`
	VerificationURL  string    `json:"verification_url"`
	SessionID        string    `json:"session_id"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// CreateSession opens a new verification session at the provider.
func (v *HTTPVerifier) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	ctx, span := v.tracer.Start(ctx, "kyc.CreateSession",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kyc.provider", v.id)),
	)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal create-session request: %w", err)
	}
	status, respBody, err := v.do(ctx, http.MethodPost, "/kyc/create-session", body)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	session, err := parseCreateSessionResponse(v.id, status, respBody)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("kyc.session_id", session.ID))
	return session, nil
}

// FetchStatus reads the latest verification status for reference, the
// provider ID sent when the session was created.
func (v *HTTPVerifier) FetchStatus(ctx context.Context, reference string) (StatusReport, error) {
	ctx, span := v.tracer.Start(ctx, "kyc.FetchStatus",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kyc.provider", v.id)),
	)
	defer span.End()

	status, respBody, err := v.do(ctx, http.MethodGet, "/kyc/status?reference="+url.QueryEscape(reference), nil)
	if err != nil {
		recordSpanError(span, err)
		return StatusReport{}, err
	}
	report, err := parseStatusResponse(v.id, status, respBody)
	if err != nil {
		recordSpanError(span, err)
		return StatusReport{}, err
	}
	span.SetAttributes(attribute.String("kyc.status", string(report.Status)))
	return report, nil
}

// do performs one round trip. Non-2xx statuses are returned as categorised
// errors. Retryable failures count against the breaker; the breaker does not
// short-circuit calls, it only reports the upstream as degraded.
func (v *HTTPVerifier) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, reader)
	if err != nil {
		return 0, nil, providers.NewProviderError(providers.ErrorInternal, v.id, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		pe := providers.FromTransport(v.id, err)
		v.record(pe)
		return 0, nil, pe
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		pe := providers.FromTransport(v.id, err)
		v.record(pe)
		return resp.StatusCode, nil, pe
	}
	if category, isErr := providers.CategoryForStatus(resp.StatusCode); isErr {
		pe := providers.NewProviderError(category, v.id, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		v.record(pe)
		return resp.StatusCode, respBody, pe
	}
	v.record(nil)
	return resp.StatusCode, respBody, nil
}

func (v *HTTPVerifier) record(err error) {
	failed := err != nil && providers.IsRetryable(err)
	t := v.breaker.Observe(failed)
	if v.logger == nil {
		return
	}
	switch t {
	case circuit.Opened:
		v.logger.Warn("identity provider circuit opened", "provider", v.id, "error", err)
	case circuit.Closed:
		v.logger.Info("identity provider circuit closed", "provider", v.id)
	}
}

func parseCreateSessionResponse(providerID string, status int, body []byte) (*Session, error) {
	if category, isErr := providers.CategoryForStatus(status); isErr {
		return nil, providers.NewProviderError(category, providerID, fmt.Sprintf("unexpected status %d", status), nil)
	}
	var resp createSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "decode create-session response", err)
	}
	redirect := resp.AuthorizationURL
	if redirect == "" {
		redirect = resp.VerificationURL
	}
	if redirect == "" || resp.SessionID == "" {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "create-session response missing url or session_id", nil)
	}
	if u, err := url.Parse(redirect); err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, providers.NewProviderError(providers.ErrorBadData, providerID, "create-session returned an invalid url", err)
	}
	return &Session{
		ID:          resp.SessionID,
		ExternalURL: redirect,
		ExpiresAt:   resp.ExpiresAt,
		Status:      StatusPending,
	}, nil
}

type statusResponse struct {
	Status     string    `json:"status"`
	Details    string    `json:"details"`
	LastUpdate time.Time `json:"last_update"`
}

func parseStatusResponse(providerID string, status int, body []byte) (StatusReport, error) {
	if category, isErr := providers.CategoryForStatus(status); isErr {
		return StatusReport{}, providers.NewProviderError(category, providerID, fmt.Sprintf("unexpected status %d", status), nil)
	}
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusReport{}, providers.NewProviderError(providers.ErrorBadData, providerID, "decode status response", err)
	}
	if resp.Status == "" {
		return StatusReport{}, providers.NewProviderError(providers.ErrorBadData, providerID, "status response missing status", nil)
	}
	// unknown values are passed through; the step handler decides what they mean
	return StatusReport{
		Status:     Status(strings.ToLower(strings.TrimSpace(resp.Status))),
		Details:    resp.Details,
		LastUpdate: resp.LastUpdate,
	}, nil
}

// PlatformFromUserAgent returns the device hint sent with create-session so
// the provider can offer its mobile capture flow.
func PlatformFromUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	if useragent.New(ua).Mobile() {
		return "mobile"
	}
	return "desktop"
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
