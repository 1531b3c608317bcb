package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"onboarding-gateway/internal/kyc"
	"onboarding-gateway/internal/license"
	"onboarding-gateway/internal/onboarding"
	"onboarding-gateway/internal/profile"
	"onboarding-gateway/internal/ratelimit"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
	"onboarding-gateway/pkg/platform/httputil"
	"onboarding-gateway/pkg/requestcontext"
)

// multipartOverhead leaves room for form boundaries and fields around the file.
const multipartOverhead = 1 << 20

// Service defines the onboarding operations behind the HTTP surface.
type Service interface {
	Checklist(ctx context.Context, providerID id.ProviderID) (onboarding.State, error)
	Refetch(ctx context.Context, providerID id.ProviderID) (onboarding.State, error)
	StartIdentity(ctx context.Context, providerID id.ProviderID) (kyc.StartResult, error)
	IdentityStatus(ctx context.Context, providerID id.ProviderID) (steps.Projection, error)
	IdentityReturn(ctx context.Context, providerID id.ProviderID, sync string) (steps.Projection, error)
	UploadLicense(ctx context.Context, providerID id.ProviderID, doc license.Document) (steps.Projection, error)
	LicenseStatus(ctx context.Context, providerID id.ProviderID) (steps.Projection, error)
	HandleReviewEvent(ctx context.Context, ev license.ReviewEvent) error
	UpdateProfile(ctx context.Context, providerID id.ProviderID, req profile.UpdateRequest) (*profile.Profile, error)
	PublishListing(ctx context.Context, providerID id.ProviderID) (*profile.Profile, error)
}

// Stream serves the live checklist over a websocket.
type Stream interface {
	Serve(w http.ResponseWriter, r *http.Request, providerID id.ProviderID, initial onboarding.State) error
}

// RateLimiter throttles the endpoints that cost an upstream call.
type RateLimiter interface {
	PerProvider(class ratelimit.Class) func(http.Handler) http.Handler
}

// Handler wires onboarding endpoints to the onboarding service.
type Handler struct {
	service         Service
	stream          Stream
	logger          *slog.Logger
	onboardingRoute string
	limiter         RateLimiter
}

type Option func(*Handler)

func WithRateLimiter(l RateLimiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// New constructs an onboarding handler. onboardingRoute is where the identity
// return redirect lands.
func New(service Service, stream Stream, logger *slog.Logger, onboardingRoute string, opts ...Option) *Handler {
	h := &Handler{
		service:         service,
		stream:          stream,
		logger:          logger,
		onboardingRoute: onboardingRoute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the provider-facing endpoints. The router must
// authenticate the provider first.
func (h *Handler) Register(r chi.Router) {
	r.Get("/onboarding/checklist", h.HandleChecklist)
	r.Post("/onboarding/checklist/refetch", h.HandleRefetch)
	r.Put("/onboarding/profile", h.HandleUpdateProfile)
	r.Post("/onboarding/marketplace/publish", h.HandlePublish)
	r.With(h.limit(ratelimit.ClassIdentitySession)).Post("/onboarding/identity/session", h.HandleStartIdentity)
	r.Get("/onboarding/identity/status", h.HandleIdentityStatus)
	r.Get("/onboarding/identity/return", h.HandleIdentityReturn)
	r.With(h.limit(ratelimit.ClassLicenseUpload)).Post("/onboarding/license", h.HandleUploadLicense)
	r.Get("/onboarding/license/status", h.HandleLicenseStatus)
	if h.stream != nil {
		r.Get("/onboarding/events", h.HandleEvents)
	}
}

func (h *Handler) limit(class ratelimit.Class) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.PerProvider(class)
}

// RegisterWebhooks mounts endpoints called by backend collaborators. The
// router must verify the shared secret first.
func (h *Handler) RegisterWebhooks(r chi.Router) {
	r.Post("/webhooks/license-review", h.HandleReviewEvent)
}

// providerID reads the authenticated provider or writes a 401.
func (h *Handler) providerID(w http.ResponseWriter, r *http.Request) (id.ProviderID, bool) {
	providerID := requestcontext.ProviderID(r.Context())
	if providerID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return providerID, false
	}
	return providerID, true
}

// HandleChecklist handles GET /onboarding/checklist. A failed load is still
// a 200; the body carries the checklist-level error and can_refetch.
func (h *Handler) HandleChecklist(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	st, err := h.service.Checklist(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, "checklist load failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// HandleRefetch handles POST /onboarding/checklist/refetch.
func (h *Handler) HandleRefetch(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	st, err := h.service.Refetch(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, "checklist refetch failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// HandleUpdateProfile handles PUT /onboarding/profile.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[profile.UpdateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.UpdateProfile(ctx, providerID, *req)
	if err != nil {
		h.fail(w, r, "profile update failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(p))
}

// HandlePublish handles POST /onboarding/marketplace/publish.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	p, err := h.service.PublishListing(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, "marketplace publish failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(p))
}

// HandleStartIdentity handles POST /onboarding/identity/session.
func (h *Handler) HandleStartIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	result, err := h.service.StartIdentity(ctx, providerID)
	if err != nil {
		h.fail(w, r, "identity session start failed", err)
		return
	}
	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	h.logger.InfoContext(ctx, "identity session ready",
		"request_id", requestcontext.RequestID(ctx),
		"provider_id", providerID.String(),
		"reused", result.Reused,
	)
	httputil.WriteJSON(w, status, FromStartResult(result))
}

// HandleIdentityStatus handles GET /onboarding/identity/status.
func (h *Handler) HandleIdentityStatus(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	p, err := h.service.IdentityStatus(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, "identity status check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProjection(p))
}

// HandleIdentityReturn handles the provider's redirect back. The sync query
// value is never trusted; a fresh status check runs and the user is sent back
// to the onboarding route either way.
func (h *Handler) HandleIdentityReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	p, err := h.service.IdentityReturn(ctx, providerID, r.URL.Query().Get("sync"))
	if err != nil {
		h.logger.WarnContext(ctx, "identity status check after return failed",
			"request_id", requestcontext.RequestID(ctx),
			"provider_id", providerID.String(),
			"error", err,
		)
	}
	http.Redirect(w, r, h.returnLocation(p, err), http.StatusSeeOther)
}

func (h *Handler) returnLocation(p steps.Projection, err error) string {
	q := url.Values{}
	q.Set("step", string(steps.IDIdentity))
	if err != nil {
		q.Set("identity", "unknown")
	} else {
		q.Set("identity", p.Status)
	}
	return h.onboardingRoute + "?" + q.Encode()
}

// HandleUploadLicense handles POST /onboarding/license (multipart field "license").
func (h *Handler) HandleUploadLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	doc, err := readDocument(w, r)
	if err != nil {
		h.fail(w, r, "license upload rejected", err)
		return
	}
	p, err := h.service.UploadLicense(ctx, providerID, doc)
	if err != nil {
		h.fail(w, r, "license upload failed", err)
		return
	}
	status := http.StatusOK
	if !p.Complete {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, FromProjection(p))
}

func readDocument(w http.ResponseWriter, r *http.Request) (license.Document, error) {
	const limit = license.MaxDocumentBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, header, err := r.FormFile("license")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || r.ContentLength > limit {
			return license.Document{}, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("el archivo supera el máximo de %d MB", license.MaxDocumentBytes>>20))
		}
		return license.Document{}, dErrors.New(dErrors.CodeBadRequest, "multipart field \"license\" is required")
	}
	defer file.Close()

	// one byte past the ceiling is enough for validation to reject it
	data, err := io.ReadAll(io.LimitReader(file, license.MaxDocumentBytes+1))
	if err != nil {
		return license.Document{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read upload")
	}
	return license.Document{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// HandleLicenseStatus handles GET /onboarding/license/status.
func (h *Handler) HandleLicenseStatus(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	p, err := h.service.LicenseStatus(r.Context(), providerID)
	if err != nil {
		h.fail(w, r, "license status check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProjection(p))
}

// HandleEvents handles GET /onboarding/events.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, ok := h.providerID(w, r)
	if !ok {
		return
	}
	st, err := h.service.Checklist(ctx, providerID)
	if err != nil {
		h.fail(w, r, "checklist load failed", err)
		return
	}
	if err := h.stream.Serve(w, r, providerID, st); err != nil {
		// the upgrader has already written the response
		h.logger.WarnContext(ctx, "checklist stream failed",
			"request_id", requestcontext.RequestID(ctx),
			"provider_id", providerID.String(),
			"error", err,
		)
	}
}

// HandleReviewEvent handles POST /webhooks/license-review.
func (h *Handler) HandleReviewEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[ReviewEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.HandleReviewEvent(ctx, req.ToEvent()); err != nil {
		h.fail(w, r, "license review event failed", err)
		return
	}
	h.logger.InfoContext(ctx, "license review event applied",
		"request_id", requestID,
		"document_ref", req.DocumentRef,
		"status", req.Status,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if de, ok := dErrors.As(err); !ok || de.Code == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"provider_id", requestcontext.ProviderID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
