package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"onboarding-gateway/internal/license/metrics"
	"onboarding-gateway/internal/providers"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
	"onboarding-gateway/pkg/platform/sentinel"
	"onboarding-gateway/pkg/requestcontext"
)

// DocumentStorage keeps the uploaded bytes under the submission's document ref.
type DocumentStorage interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

// SubmissionStore persists submissions. Create supersedes the provider's
// current submission; superseded rows are retained for audit.
type SubmissionStore interface {
	Create(ctx context.Context, sub *Submission) error
	Current(ctx context.Context, providerID id.ProviderID) (*Submission, error)
	FindByDocumentRef(ctx context.Context, documentRef string) (*Submission, error)
	UpdateStatus(ctx context.Context, sub *Submission) error
	History(ctx context.Context, providerID id.ProviderID) ([]*Submission, error)
	HasDigest(ctx context.Context, providerID id.ProviderID, digest string, statuses []Status) (bool, error)
}

// ErrSubmissionNotFound is returned by a SubmissionStore lookup that matched nothing.
var ErrSubmissionNotFound = fmt.Errorf("license submission %w", sentinel.ErrNotFound)

// StepHandler drives the license step for one provider. Manual review can take
// a day, so nothing here polls: a status fetch happens on demand and the
// review service pushes its decision through HandleReviewEvent.
type StepHandler struct {
	providerID  id.ProviderID
	reviewer    Reviewer
	storage     DocumentStorage
	submissions SubmissionStore
	logger      *slog.Logger
	metrics     *metrics.Metrics
	listener    steps.Listener

	mu        sync.Mutex
	current   *Submission
	uploading bool
	lastErr   *steps.Error
	configErr bool
	seq       uint64
	applied   uint64
	closed    bool
}

// Option configures a StepHandler.
type Option func(*StepHandler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *StepHandler) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *StepHandler) {
		h.metrics = m
	}
}

// WithListener is called after every projection change.
func WithListener(l steps.Listener) Option {
	return func(h *StepHandler) {
		h.listener = l
	}
}

func NewStepHandler(providerID id.ProviderID, reviewer Reviewer, storage DocumentStorage, submissions SubmissionStore, opts ...Option) *StepHandler {
	h := &StepHandler{
		providerID:  providerID,
		reviewer:    reviewer,
		storage:     storage,
		submissions: submissions,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *StepHandler) ID() steps.ID { return steps.IDLicense }

// Load picks up the provider's current submission from the store.
func (h *StepHandler) Load(ctx context.Context) error {
	sub, err := h.submissions.Current(ctx, h.providerID)
	if errors.Is(err, ErrSubmissionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load license submission: %w", err)
	}
	h.mu.Lock()
	if h.current == nil {
		h.current = sub
	}
	h.mu.Unlock()
	return nil
}

// UploadDocument validates doc locally, stores it, and submits it for
// classification. A new upload always starts a new submission in pending;
// only the classification response can move it further.
func (h *StepHandler) UploadDocument(ctx context.Context, doc Document) (steps.Projection, error) {
	contentType, err := Validate(doc)
	if err != nil {
		h.metrics.IncValidationFailure()
		var stepErr *steps.Error
		errors.As(err, &stepErr)
		return h.Projection(), dErrors.Wrap(err, dErrors.CodeValidation, stepErr.Message)
	}

	h.mu.Lock()
	if err := h.checkUploadAllowed(); err != nil {
		h.mu.Unlock()
		return h.Projection(), err
	}
	h.uploading = true
	h.seq++
	// fetches issued before this upload describe an older submission
	h.applied = h.seq
	h.mu.Unlock()
	h.notify()

	err = h.upload(ctx, doc, contentType)

	h.mu.Lock()
	h.uploading = false
	h.mu.Unlock()
	h.notify()
	return h.Projection(), err
}

func (h *StepHandler) upload(ctx context.Context, doc Document, contentType string) error {
	digest := Digest(doc.Data)
	dup, err := h.submissions.HasDigest(ctx, h.providerID, digest, []Status{StatusRejected})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check previous submissions")
	}
	if dup {
		h.metrics.IncValidationFailure()
		msg := "este documento ya fue rechazado, sube una foto nueva de tu licencia"
		return dErrors.Wrap(steps.NewError(steps.KindValidation, msg), dErrors.CodeValidation, msg)
	}

	subID := id.NewSubmissionID()
	sub := &Submission{
		ID:          subID,
		ProviderID:  h.providerID,
		DocumentRef: fmt.Sprintf("licenses/%s/%s%s", h.providerID, subID, extensionFor(contentType)),
		ContentType: contentType,
		Digest:      digest,
		Status:      StatusPending,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := h.storage.Put(ctx, sub.DocumentRef, contentType, doc.Data); err != nil {
		h.logger.ErrorContext(ctx, "failed to store license document",
			"provider_id", h.providerID.String(),
			"document_ref", sub.DocumentRef,
			"error", err,
		)
		h.setLastErr(steps.NewError(steps.KindTransient, "no pudimos guardar el documento, inténtalo de nuevo"))
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store license document")
	}
	if err := h.submissions.Create(ctx, sub); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// another instance created a submission for this provider concurrently
			return dErrors.Wrap(err, dErrors.CodeConflict, "a license upload is already in progress")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record license submission")
	}

	h.mu.Lock()
	h.current = sub
	h.lastErr = nil
	h.configErr = false
	h.mu.Unlock()
	h.metrics.IncOutcome(string(StatusPending))
	h.notify()

	if err := h.moveTo(ctx, sub.ID, StatusProcessingAI, ""); err != nil {
		h.logger.ErrorContext(ctx, "failed to record license submission",
			"provider_id", h.providerID.String(),
			"document_ref", sub.DocumentRef,
			"error", err,
		)
		h.setLastErr(steps.NewError(steps.KindTransient, "no pudimos registrar el documento, inténtalo de nuevo"))
		return err
	}

	start := time.Now()
	result, err := h.reviewer.Upload(ctx, sub, doc)
	h.metrics.ObserveUpload(start)
	if err != nil {
		h.metrics.IncUpload("error")
		h.logger.ErrorContext(ctx, "license upload to review service failed",
			"provider_id", h.providerID.String(),
			"document_ref", sub.DocumentRef,
			"error", err,
		)
		h.reopen(ctx, sub.ID)
		h.setLastErr(providers.StepError(err))
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "license review service unavailable")
	}
	h.metrics.IncUpload("ok")
	h.applyResult(ctx, sub.ID, result, false)
	return nil
}

// checkUploadAllowed reports why an upload cannot start. Caller holds h.mu.
func (h *StepHandler) checkUploadAllowed() error {
	if h.closed {
		return dErrors.New(dErrors.CodeUnavailable, "onboarding session closed")
	}
	if h.uploading {
		return dErrors.New(dErrors.CodeConflict, "a license upload is already in progress")
	}
	if h.current == nil {
		return nil
	}
	switch h.current.Status {
	case StatusProcessingAI, StatusInReview:
		return dErrors.New(dErrors.CodeConflict, "the current license is under review")
	case StatusVerified:
		return dErrors.New(dErrors.CodeConflict, "license already verified")
	}
	return nil
}

// CheckStatus fetches the review status of the current submission. Only
// submissions waiting on the review service are fetched; every other state is
// decided locally.
func (h *StepHandler) CheckStatus(ctx context.Context) (steps.Projection, error) {
	h.mu.Lock()
	needsLoad := h.current == nil
	h.mu.Unlock()
	if needsLoad {
		if err := h.Load(ctx); err != nil {
			return h.Projection(), err
		}
	}

	h.mu.Lock()
	if h.current == nil || h.uploading || (h.current.Status != StatusProcessingAI && h.current.Status != StatusInReview) {
		h.mu.Unlock()
		return h.Projection(), nil
	}
	h.seq++
	seq := h.seq
	subID := h.current.ID
	ref := h.current.DocumentRef
	h.mu.Unlock()

	result, err := h.reviewer.FetchStatus(ctx, ref)

	h.mu.Lock()
	if seq <= h.applied {
		h.mu.Unlock()
		return h.Projection(), err
	}
	h.applied = seq
	h.mu.Unlock()

	if err != nil {
		h.logger.WarnContext(ctx, "license status check failed",
			"provider_id", h.providerID.String(),
			"error", err,
		)
		h.setLastErr(providers.StepError(err))
		return h.Projection(), err
	}
	h.applyResult(ctx, subID, result, false)
	return h.Projection(), nil
}

// GetStatus is CheckStatus under the name the checklist UI uses on mount.
func (h *StepHandler) GetStatus(ctx context.Context) (steps.Projection, error) {
	return h.CheckStatus(ctx)
}

// HandleReviewEvent applies a decision pushed by the review service. Events
// for superseded submissions update the audit record only.
func (h *StepHandler) HandleReviewEvent(ctx context.Context, ev ReviewEvent) error {
	if ev.DocumentRef == "" {
		return dErrors.New(dErrors.CodeValidation, "document_ref is required")
	}
	if !ev.Status.IsKnown() {
		h.metrics.IncReviewEvent("unknown")
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown license status %q", ev.Status))
	}

	h.mu.Lock()
	isCurrent := h.current != nil && h.current.DocumentRef == ev.DocumentRef
	var subID id.SubmissionID
	if isCurrent {
		subID = h.current.ID
		// a pushed decision outranks any fetch still in flight
		h.seq++
		h.applied = h.seq
	}
	h.mu.Unlock()

	result := ReviewResult{Status: ev.Status, RejectionReason: ev.RejectionReason}
	if isCurrent {
		if h.applyResult(ctx, subID, result, true) {
			h.metrics.IncReviewEvent("applied")
		} else {
			h.metrics.IncReviewEvent("ignored")
		}
		return nil
	}

	sub, err := h.submissions.FindByDocumentRef(ctx, ev.DocumentRef)
	if errors.Is(err, ErrSubmissionNotFound) {
		h.metrics.IncReviewEvent("unknown")
		return dErrors.New(dErrors.CodeNotFound, "license submission not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load license submission")
	}
	if sub.ProviderID != h.providerID {
		return dErrors.New(dErrors.CodeNotFound, "license submission not found")
	}
	if sub.Status.CanTransitionTo(ev.Status) {
		resolve(sub, result, ev.ReviewedAt)
		if err := h.submissions.UpdateStatus(ctx, sub); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review decision")
		}
	}
	h.metrics.IncReviewEvent("ignored")
	h.logger.InfoContext(ctx, "review event for superseded license submission",
		"provider_id", h.providerID.String(),
		"document_ref", ev.DocumentRef,
		"status", string(ev.Status),
	)
	return nil
}

// moveTo persists a local transition on the current submission and applies
// it in memory only once the write succeeded.
func (h *StepHandler) moveTo(ctx context.Context, subID id.SubmissionID, next Status, reason string) error {
	h.mu.Lock()
	if h.current == nil || h.current.ID != subID || !h.current.Status.CanTransitionTo(next) {
		h.mu.Unlock()
		return nil
	}
	prev := h.current.Status
	updated := *h.current
	h.mu.Unlock()

	updated.Status = next
	updated.RejectionReason = reason
	if err := h.submissions.UpdateStatus(ctx, &updated); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record license status")
	}
	if !h.commit(subID, prev, next, reason) {
		return nil
	}
	h.metrics.IncOutcome(string(next))
	h.notify()
	return nil
}

// commit applies a persisted transition unless the submission moved on in
// the meantime.
func (h *StepHandler) commit(subID id.SubmissionID, prev, next Status, reason string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil || h.current.ID != subID || h.current.Status != prev {
		return false
	}
	h.current.Status = next
	h.current.RejectionReason = reason
	return true
}

// reopen puts a submission whose upload never reached the review service back
// in pending. The local state is reset even when the write fails, since the
// review service has nothing to report on.
func (h *StepHandler) reopen(ctx context.Context, subID id.SubmissionID) {
	err := h.moveTo(ctx, subID, StatusPending, "")
	if err == nil {
		return
	}
	h.logger.ErrorContext(ctx, "failed to record license submission back in pending",
		"provider_id", h.providerID.String(),
		"error", err,
	)
	if h.commit(subID, StatusProcessingAI, StatusPending, "") {
		h.metrics.IncOutcome(string(StatusPending))
		h.notify()
	}
}

// applyResult applies a review result to the current submission. Only an
// explicit review event may take a verified license back to rejected.
func (h *StepHandler) applyResult(ctx context.Context, subID id.SubmissionID, result ReviewResult, explicit bool) bool {
	h.mu.Lock()
	if h.current == nil || h.current.ID != subID {
		h.mu.Unlock()
		return false
	}
	if !result.Status.IsKnown() {
		h.configErr = true
		h.lastErr = steps.NewError(steps.KindConfiguration,
			fmt.Sprintf("estado de licencia desconocido: %q", string(result.Status)))
		h.mu.Unlock()
		h.logger.ErrorContext(ctx, "review service reported unknown status",
			"provider_id", h.providerID.String(),
			"status", string(result.Status),
		)
		h.notify()
		return false
	}

	cleared := h.configErr || (h.lastErr != nil && h.lastErr.Kind != steps.KindTerminalNegative)
	h.configErr = false
	if h.lastErr != nil && h.lastErr.Kind != steps.KindTerminalNegative {
		h.lastErr = nil
	}

	prev := h.current.Status
	next := result.Status
	if next == StatusPending && prev == StatusProcessingAI {
		// classification is queued; nothing changed from our side
		next = prev
	}
	allowed := prev.CanTransitionTo(next) && !(prev == StatusVerified && !explicit)
	if next == prev || !allowed {
		h.mu.Unlock()
		if next != prev {
			h.logger.WarnContext(ctx, "ignoring license status transition",
				"provider_id", h.providerID.String(),
				"from", string(prev),
				"to", string(next),
			)
		}
		if cleared {
			h.notify()
		}
		return false
	}

	resolve(h.current, result, requestcontext.Now(ctx))
	if next == StatusRejected {
		h.lastErr = steps.NewError(steps.KindTerminalNegative, h.current.RejectionReason)
	} else {
		h.lastErr = nil
	}
	snapshot := *h.current
	h.mu.Unlock()

	h.metrics.IncOutcome(string(next))
	h.logger.InfoContext(ctx, "license status changed",
		"provider_id", h.providerID.String(),
		"document_ref", snapshot.DocumentRef,
		"from", string(prev),
		"to", string(next),
	)
	if err := h.submissions.UpdateStatus(ctx, &snapshot); err != nil {
		h.logger.ErrorContext(ctx, "failed to persist license status",
			"provider_id", h.providerID.String(),
			"error", err,
		)
	}
	h.notify()
	return true
}

// resolve writes a review result onto sub, filling in the default rejection reason.
func resolve(sub *Submission, result ReviewResult, reviewedAt time.Time) {
	sub.Status = result.Status
	sub.RejectionReason = ""
	if result.Status == StatusRejected {
		sub.RejectionReason = result.RejectionReason
		if sub.RejectionReason == "" {
			sub.RejectionReason = DefaultRejectionReason
		}
	}
	if result.Status.IsTerminal() {
		if reviewedAt.IsZero() {
			reviewedAt = time.Now()
		}
		t := reviewedAt
		sub.ReviewedAt = &t
	}
}

func (h *StepHandler) setLastErr(err *steps.Error) {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
	h.notify()
}

// Submission returns a copy of the current submission, or nil.
func (h *StepHandler) Submission() *Submission {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	sub := *h.current
	return &sub
}

// Projection returns the checklist view without I/O.
func (h *StepHandler) Projection() steps.Projection {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := steps.Projection{
		Status:         NotSubmitted,
		StatusText:     "Pendiente",
		ActionDisabled: h.uploading || h.configErr,
		Err:            h.lastErr,
	}
	if h.current == nil {
		return p
	}
	status := h.current.Status
	p.Status = string(status)
	p.StatusText = status.Text()
	p.Complete = status == StatusVerified
	if status == StatusProcessingAI || status == StatusInReview {
		p.ActionDisabled = true
	}
	if h.configErr {
		p.StatusText = "Estado de licencia no disponible"
	}
	return p
}

func (h *StepHandler) IsTerminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil && h.current.Status.IsTerminal()
}

// Close marks the handler closed; there is no background work to stop.
func (h *StepHandler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *StepHandler) notify() {
	if h.listener != nil {
		h.listener(steps.IDLicense)
	}
}
