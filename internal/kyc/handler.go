package kyc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"onboarding-gateway/internal/kyc/metrics"
	"onboarding-gateway/internal/polling"
	"onboarding-gateway/internal/providers"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
	"onboarding-gateway/pkg/requestcontext"
)

const defaultPollInterval = 3 * time.Second

// StepHandler drives the identity step for one provider. It owns the
// verification session; the checklist only reads Projection.
//
// Every status request takes a sequence number. A response is applied only if
// no newer request has been applied already, so a slow poll tick can never
// overwrite a fresher answer.
type StepHandler struct {
	providerID id.ProviderID
	verifier   Verifier
	sessions   SessionStore
	interval   time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	listener   steps.Listener

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	status    Status
	session   *Session
	lastErr   *steps.Error
	configErr bool
	transient int
	seq       uint64
	applied   uint64
	poller    *polling.Poller[Status]
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

// WithSessionStore persists the active session marker.
func WithSessionStore(s SessionStore) Option {
	return func(h *StepHandler) {
		h.sessions = s
	}
}

// WithListener is called after every projection change.
func WithListener(l steps.Listener) Option {
	return func(h *StepHandler) {
		h.listener = l
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(h *StepHandler) {
		if d > 0 {
			h.interval = d
		}
	}
}

// NewStepHandler creates a handler in not_started. Call Resume to pick up a
// session persisted by an earlier process.
func NewStepHandler(providerID id.ProviderID, verifier Verifier, opts ...Option) *StepHandler {
	h := &StepHandler{
		providerID: providerID,
		verifier:   verifier,
		interval:   defaultPollInterval,
		logger:     slog.Default(),
		status:     StatusNotStarted,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.baseCtx, h.cancel = context.WithCancel(context.Background())
	return h
}

func (h *StepHandler) ID() steps.ID { return steps.IDIdentity }

// Resume loads the persisted session marker, if any. A found session puts the
// handler in in_progress; the next CheckStatus resolves the real status.
func (h *StepHandler) Resume(ctx context.Context) error {
	if h.sessions == nil {
		return nil
	}
	session, err := h.sessions.FindActive(ctx, h.providerID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resume identity session: %w", err)
	}
	h.mu.Lock()
	if h.session == nil {
		h.session = session
		h.status = StatusInProgress
	}
	h.mu.Unlock()
	return nil
}

// StartVerification opens a session at the provider and returns where to send
// the user. While an unexpired session is pending or in progress it returns
// that session again without calling the provider.
func (h *StepHandler) StartVerification(ctx context.Context, req StartRequest) (StartResult, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return StartResult{}, dErrors.New(dErrors.CodeUnavailable, "onboarding session closed")
	}
	if h.status.InFlight() && h.session != nil && !h.session.Expired(requestcontext.Now(ctx)) {
		res := StartResult{
			SessionID:   h.session.ID,
			RedirectURL: h.session.ExternalURL,
			ExpiresAt:   h.session.ExpiresAt,
			Reused:      true,
		}
		h.mu.Unlock()
		h.metrics.IncSessionReused()
		return res, nil
	}
	switch h.status {
	case StatusPending:
		h.mu.Unlock()
		return StartResult{}, dErrors.New(dErrors.CodeConflict, "identity verification is already being started")
	case StatusVerified:
		h.mu.Unlock()
		return StartResult{}, dErrors.New(dErrors.CodeConflict, "identity already verified")
	}
	h.status = StatusPending
	h.lastErr = nil
	h.configErr = false
	h.seq++
	startSeq := h.seq
	// responses to requests issued before this start are stale from here on
	h.applied = startSeq
	h.mu.Unlock()
	h.notify()

	start := time.Now()
	session, err := h.verifier.CreateSession(ctx, CreateSessionRequest{
		Reference: h.providerID.String(),
		ReturnURL: req.ReturnURL,
		Platform:  PlatformFromUserAgent(req.UserAgent),
	})
	h.metrics.ObserveProviderCall("create_session", start)
	if err != nil {
		stepErr := providers.StepError(err)
		h.mu.Lock()
		h.status = StatusError
		h.lastErr = stepErr
		stale := h.poller
		h.poller = nil
		h.mu.Unlock()
		if stale != nil {
			stale.Cancel()
		}
		h.metrics.IncSessionFailure(string(providers.GetCategory(err)))
		h.logger.ErrorContext(ctx, "failed to create identity session",
			"provider_id", h.providerID.String(),
			"error", err,
		)
		h.notify()
		return StartResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, stepErr.Message)
	}

	session.ProviderID = h.providerID
	session.Status = StatusInProgress
	session.CreatedAt = requestcontext.Now(ctx)
	if h.sessions != nil {
		if err := h.sessions.Save(ctx, session); err != nil {
			// the session still works; only resume-after-restart is lost
			h.logger.WarnContext(ctx, "failed to persist identity session marker",
				"provider_id", h.providerID.String(),
				"session_id", session.ID,
				"error", err,
			)
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return StartResult{}, dErrors.New(dErrors.CodeUnavailable, "onboarding session closed")
	}
	superseded := h.poller
	h.poller = nil
	h.session = session
	h.status = StatusInProgress
	h.transient = 0
	h.mu.Unlock()
	if superseded != nil {
		superseded.Cancel()
	}
	h.metrics.IncSessionCreated()
	h.metrics.IncTransition(string(StatusInProgress))
	h.logger.InfoContext(ctx, "identity session created",
		"provider_id", h.providerID.String(),
		"session_id", session.ID,
		"expires_at", session.ExpiresAt,
	)
	h.notify()
	h.ensurePolling()

	return StartResult{
		SessionID:   session.ID,
		RedirectURL: session.ExternalURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// CheckStatus fetches the status once and makes sure a poller is running
// while there is an unresolved session.
func (h *StepHandler) CheckStatus(ctx context.Context) (steps.Projection, error) {
	_, err := h.refresh(ctx)
	h.ensurePolling()
	return h.Projection(), err
}

// HandleReturn is called when the provider sends the user back. The sync
// value is only logged: the provider's status endpoint is the source of truth.
func (h *StepHandler) HandleReturn(ctx context.Context, sync string) (steps.Projection, error) {
	h.logger.InfoContext(ctx, "identity provider redirect return",
		"provider_id", h.providerID.String(),
		"sync", sync,
	)
	return h.CheckStatus(ctx)
}

// refresh performs one status fetch and returns the status after applying it.
// It is also the poller's check function.
func (h *StepHandler) refresh(ctx context.Context) (Status, error) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	var sessionID string
	if h.session != nil {
		sessionID = h.session.ID
	}
	h.mu.Unlock()

	start := time.Now()
	report, err := h.verifier.FetchStatus(ctx, h.providerID.String())
	h.metrics.ObserveProviderCall("fetch_status", start)
	if err != nil {
		h.metrics.IncStatusCheck("error")
		return h.recordFailure(ctx, seq, err)
	}
	h.metrics.IncStatusCheck("ok")
	return h.apply(ctx, seq, sessionID, report), nil
}

func (h *StepHandler) recordFailure(ctx context.Context, seq uint64, err error) (Status, error) {
	stepErr := providers.StepError(err)
	h.mu.Lock()
	if h.closed || seq <= h.applied {
		status := h.status
		h.mu.Unlock()
		h.metrics.IncStaleResponse()
		return status, err
	}
	h.applied = seq
	if stepErr.Kind == steps.KindTransient {
		h.transient++
	}
	h.lastErr = stepErr
	status := h.status
	h.mu.Unlock()

	h.logger.WarnContext(ctx, "identity status check failed",
		"provider_id", h.providerID.String(),
		"kind", string(stepErr.Kind),
		"error", err,
	)
	h.notify()
	return status, err
}

func (h *StepHandler) apply(ctx context.Context, seq uint64, sessionID string, report StatusReport) Status {
	h.mu.Lock()
	if h.closed || seq <= h.applied || h.currentSessionID() != sessionID {
		status := h.status
		h.mu.Unlock()
		h.metrics.IncStaleResponse()
		return status
	}
	h.applied = seq
	prev := h.status
	changed := h.transition(report)
	status := h.status
	resolved := status != prev && status.StopsPolling()
	h.mu.Unlock()

	if !report.Status.IsKnown() {
		h.logger.ErrorContext(ctx, "identity provider reported unknown status",
			"provider_id", h.providerID.String(),
			"status", string(report.Status),
		)
	}
	if status != prev {
		h.metrics.IncTransition(string(status))
		h.logger.InfoContext(ctx, "identity status changed",
			"provider_id", h.providerID.String(),
			"from", string(prev),
			"to", string(status),
		)
	}
	if resolved && h.sessions != nil {
		if err := h.sessions.Delete(ctx, h.providerID); err != nil {
			h.logger.WarnContext(ctx, "failed to clear identity session marker",
				"provider_id", h.providerID.String(),
				"error", err,
			)
		}
	}
	if changed {
		h.notify()
	}
	return status
}

// transition applies a successful report. Caller holds h.mu.
func (h *StepHandler) transition(report StatusReport) bool {
	next := report.Status
	if !next.IsKnown() {
		h.configErr = true
		h.lastErr = steps.NewError(steps.KindConfiguration,
			fmt.Sprintf("estado de verificación desconocido: %q", string(next)))
		return true
	}

	changed := false
	if h.configErr {
		h.configErr = false
		changed = true
	}
	if h.lastErr != nil && h.lastErr.Kind != steps.KindTerminalNegative {
		h.lastErr = nil
		changed = true
	}
	h.transient = 0

	switch {
	case h.status == StatusPending:
		// a session is being created; its outcome decides the status
		return changed
	case next == StatusPending:
		// the provider has the session but the user has not begun
		if h.session == nil {
			return changed
		}
		next = StatusInProgress
	case next == StatusNotStarted && h.session != nil:
		// the provider has not registered the new session yet
		return changed
	case h.status == StatusVerified && next != StatusRejected:
		// only an explicit rejection takes a verified step back
		return changed
	}
	if next == h.status {
		return changed
	}

	h.status = next
	if h.session != nil {
		h.session.Status = next
	}
	switch next {
	case StatusVerified:
		h.lastErr = nil
	case StatusRejected, StatusExpired, StatusAbandoned, StatusError:
		h.lastErr = steps.NewError(steps.KindTerminalNegative, negativeReason(next, report.Details))
	}
	return true
}

func negativeReason(s Status, details string) string {
	if details != "" {
		return details
	}
	switch s {
	case StatusRejected:
		return "el proveedor rechazó la verificación de identidad"
	case StatusExpired:
		return "la sesión de verificación expiró, inicia una nueva"
	case StatusAbandoned:
		return "la verificación quedó sin terminar, vuelve a intentarlo"
	default:
		return "el proveedor no pudo completar la verificación"
	}
}

func (h *StepHandler) currentSessionID() string {
	if h.session == nil {
		return ""
	}
	return h.session.ID
}

// ensurePolling starts a poller if a session is unresolved and none is running.
func (h *StepHandler) ensurePolling() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.poller != nil || h.session == nil || h.status.StopsPolling() || h.status == StatusPending {
		return
	}
	var p *polling.Poller[Status]
	p = polling.Start(h.baseCtx, h.refresh, h.interval, Status.StopsPolling,
		polling.OnStop[Status](func(reason polling.StopReason) {
			h.mu.Lock()
			if h.poller == p {
				h.poller = nil
			}
			h.mu.Unlock()
			h.logger.Debug("identity status poller stopped",
				"provider_id", h.providerID.String(),
				"reason", reason.String(),
			)
		}),
	)
	h.poller = p
}

// Polling reports whether a poller is running.
func (h *StepHandler) Polling() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.poller != nil
}

// TransientFailures is the number of transient fetch failures since the last
// successful check.
func (h *StepHandler) TransientFailures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transient
}

// Status returns the current verification status.
func (h *StepHandler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Projection returns the checklist view without I/O.
func (h *StepHandler) Projection() steps.Projection {
	h.mu.Lock()
	defer h.mu.Unlock()
	text := h.status.Text()
	if h.configErr {
		text = "Estado de verificación no disponible"
	}
	return steps.Projection{
		Status:         string(h.status),
		Complete:       h.status == StatusVerified,
		ActionDisabled: h.status.InFlight() || h.configErr,
		StatusText:     text,
		Err:            h.lastErr,
	}
}

func (h *StepHandler) IsTerminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status.IsTerminal()
}

// Close stops the poller. Results of in-flight checks are dropped.
func (h *StepHandler) Close() {
	h.mu.Lock()
	h.closed = true
	p := h.poller
	h.poller = nil
	h.mu.Unlock()
	if p != nil {
		p.Cancel()
	}
	h.cancel()
}

func (h *StepHandler) notify() {
	if h.listener != nil {
		h.listener(steps.IDIdentity)
	}
}
