package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding-gateway/internal/providers"
	"onboarding-gateway/pkg/platform/circuit"
)

// Reviewer is the contract with the document classification and review service.
type Reviewer interface {
	Upload(ctx context.Context, sub *Submission, doc Document) (ReviewResult, error)
	FetchStatus(ctx context.Context, documentRef string) (ReviewResult, error)
}

const (
	formField        = "license"
	maxResponseBytes = 64 << 10
)

// HTTPReviewer calls the review service over HTTP.
type HTTPReviewer struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuit.Breaker
	tracer  trace.Tracer
	logger  *slog.Logger
}

// HTTPReviewerOption configures an HTTPReviewer.
type HTTPReviewerOption func(*HTTPReviewer)

func WithReviewerHTTPClient(c *http.Client) HTTPReviewerOption {
	return func(r *HTTPReviewer) {
		if c != nil {
			r.client = c
		}
	}
}

func WithReviewerBreaker(b *circuit.Breaker) HTTPReviewerOption {
	return func(r *HTTPReviewer) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithReviewerLogger(l *slog.Logger) HTTPReviewerOption {
	return func(r *HTTPReviewer) {
		r.logger = l
	}
}

func NewHTTPReviewer(id, baseURL, apiKey string, timeout time.Duration, opts ...HTTPReviewerOption) *HTTPReviewer {
	r := &HTTPReviewer{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New(id),
		tracer:  otel.Tracer("onboarding-gateway/license"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPReviewer) ID() string                { return r.id }
func (r *HTTPReviewer) Kind() providers.Kind      { return providers.KindLicense }
func (r *HTTPReviewer) Breaker() *circuit.Breaker { return r.breaker }

func (r *HTTPReviewer) Health(ctx context.Context) error {
	if r.breaker.IsOpen() {
		return providers.NewProviderError(providers.ErrorProviderOutage, r.id, "too many consecutive failures", providers.ErrCircuitOpen)
	}
	_, err := r.do(ctx, http.MethodGet, "/health", "", nil)
	return err
}

// Upload sends the document as multipart field "license" together with its
// document ref, and returns the classification result.
func (r *HTTPReviewer) Upload(ctx context.Context, sub *Submission, doc Document) (ReviewResult, error) {
	ctx, span := r.tracer.Start(ctx, "license.Upload",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("license.provider", r.id),
			attribute.Int("license.size", len(doc.Data)),
		),
	)
	defer span.End()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("document_ref", sub.DocumentRef); err != nil {
		return ReviewResult{}, fmt.Errorf("write document_ref field: %w", err)
	}
	if err := mw.WriteField("provider_id", sub.ProviderID.String()); err != nil {
		return ReviewResult{}, fmt.Errorf("write provider_id field: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, formField, filenameFor(sub, doc)))
	header.Set("Content-Type", sub.ContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return ReviewResult{}, fmt.Errorf("create license part: %w", err)
	}
	if _, err := part.Write(doc.Data); err != nil {
		return ReviewResult{}, fmt.Errorf("write license part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return ReviewResult{}, fmt.Errorf("close multipart body: %w", err)
	}

	respBody, err := r.do(ctx, http.MethodPost, "/license/upload", mw.FormDataContentType(), body.Bytes())
	if err != nil {
		recordSpanError(span, err)
		return ReviewResult{}, err
	}
	result, err := r.decode(respBody)
	if err != nil {
		recordSpanError(span, err)
		return ReviewResult{}, err
	}
	span.SetAttributes(attribute.String("license.status", string(result.Status)))
	return result, nil
}

func (r *HTTPReviewer) FetchStatus(ctx context.Context, documentRef string) (ReviewResult, error) {
	ctx, span := r.tracer.Start(ctx, "license.FetchStatus",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("license.provider", r.id)),
	)
	defer span.End()

	respBody, err := r.do(ctx, http.MethodGet, "/license/status?document_ref="+url.QueryEscape(documentRef), "", nil)
	if err != nil {
		recordSpanError(span, err)
		return ReviewResult{}, err
	}
	result, err := r.decode(respBody)
	if err != nil {
		recordSpanError(span, err)
		return ReviewResult{}, err
	}
	return result, nil
}

func (r *HTTPReviewer) decode(body []byte) (ReviewResult, error) {
	var result ReviewResult
	if err := json.Unmarshal(body, &result); err != nil {
		return ReviewResult{}, providers.NewProviderError(providers.ErrorBadData, r.id, "decode review response", err)
	}
	if result.Status == "" {
		return ReviewResult{}, providers.NewProviderError(providers.ErrorBadData, r.id, "review response missing status", nil)
	}
	result.Status = Status(strings.ToLower(strings.TrimSpace(string(result.Status))))
	return result, nil
}

func (r *HTTPReviewer) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, r.id, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		pe := providers.FromTransport(r.id, err)
		r.record(pe)
		return nil, pe
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		pe := providers.FromTransport(r.id, err)
		r.record(pe)
		return nil, pe
	}
	if category, isErr := providers.CategoryForStatus(resp.StatusCode); isErr {
		pe := providers.NewProviderError(category, r.id, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
		r.record(pe)
		return nil, pe
	}
	r.record(nil)
	return respBody, nil
}

func (r *HTTPReviewer) record(err error) {
	failed := err != nil && providers.IsRetryable(err)
	t := r.breaker.Observe(failed)
	if r.logger == nil {
		return
	}
	switch t {
	case circuit.Opened:
		r.logger.Warn("review service circuit opened", "provider", r.id, "error", err)
	case circuit.Closed:
		r.logger.Info("review service circuit closed", "provider", r.id)
	}
}

func filenameFor(sub *Submission, doc Document) string {
	if doc.Filename != "" {
		return doc.Filename
	}
	return sub.ID.String() + extensionFor(sub.ContentType)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
