package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"onboarding-gateway/internal/audit"
	"onboarding-gateway/internal/kyc"
	kycmetrics "onboarding-gateway/internal/kyc/metrics"
	"onboarding-gateway/internal/license"
	licensemetrics "onboarding-gateway/internal/license/metrics"
	"onboarding-gateway/internal/onboarding/metrics"
	"onboarding-gateway/internal/profile"
	"onboarding-gateway/internal/providers"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
	"onboarding-gateway/pkg/requestcontext"
)

const (
	defaultIdleTTL        = 30 * time.Minute
	completionPublishWait = 5 * time.Second
)

// CompletedEvent is published once per transition into 100%.
type CompletedEvent struct {
	ProviderID  id.ProviderID `json:"provider_id"`
	CompletedAt time.Time     `json:"completed_at"`
	Steps       []steps.ID    `json:"steps"`
}

// CompletionPublisher delivers completion events to downstream consumers.
type CompletionPublisher interface {
	PublishCompleted(ctx context.Context, ev CompletedEvent) error
}

// StateNotifier pushes checklist changes to connected clients.
type StateNotifier interface {
	Notify(providerID id.ProviderID, st State)
}

// Auditor records onboarding actions. Emit must not block.
type Auditor interface {
	Emit(ctx context.Context, ev audit.Event)
}

// CompletionStore remembers providers that already reached 100%, so a
// recreated session does not announce the completion again.
type CompletionStore interface {
	IsCompleted(ctx context.Context, providerID id.ProviderID) (bool, error)
	MarkCompleted(ctx context.Context, providerID id.ProviderID, at time.Time) error
	ClearCompleted(ctx context.Context, providerID id.ProviderID) error
}

// Dependencies are the collaborators every provider session is built from.
type Dependencies struct {
	Verifier    kyc.Verifier
	KYCSessions kyc.SessionStore
	Reviewer    license.Reviewer
	Documents   license.DocumentStorage
	Submissions license.SubmissionStore
	Profiles    profile.Store
}

// Service keeps one Session per provider, created lazily.
type Service struct {
	deps     Dependencies
	defs     []Definition
	profiles *profile.Service

	logger         *slog.Logger
	metrics        *metrics.Metrics
	kycMetrics     *kycmetrics.Metrics
	licenseMetrics *licensemetrics.Metrics
	publisher      CompletionPublisher
	notifier       StateNotifier
	auditor        Auditor
	completions    CompletionStore
	pollInterval   time.Duration
	returnURL      string
	idleTTL        time.Duration

	mu       sync.Mutex
	sessions map[id.ProviderID]*Session
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithKYCMetrics(m *kycmetrics.Metrics) Option {
	return func(s *Service) {
		s.kycMetrics = m
	}
}

func WithLicenseMetrics(m *licensemetrics.Metrics) Option {
	return func(s *Service) {
		s.licenseMetrics = m
	}
}

func WithDefinitions(defs []Definition) Option {
	return func(s *Service) {
		s.defs = defs
	}
}

func WithPublisher(p CompletionPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithNotifier(n StateNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithCompletions persists the completion gate across sessions.
func WithCompletions(c CompletionStore) Option {
	return func(s *Service) {
		s.completions = c
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithIdentityReturnURL is where the verification provider sends the user back.
func WithIdentityReturnURL(u string) Option {
	return func(s *Service) {
		s.returnURL = u
	}
}

func WithIdleTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

func NewService(deps Dependencies, opts ...Option) *Service {
	s := &Service{
		deps:     deps,
		defs:     DefaultDefinitions(),
		logger:   slog.Default(),
		idleTTL:  defaultIdleTTL,
		sessions: make(map[id.ProviderID]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.profiles = profile.NewService(deps.Profiles, s.logger)
	return s
}

// session returns the provider's session, creating and loading it on first use.
func (s *Service) session(ctx context.Context, providerID id.ProviderID) (*Session, error) {
	if providerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing provider identity")
	}
	s.mu.Lock()
	sess, ok := s.sessions[providerID]
	if !ok {
		sess = s.newSession(providerID)
		s.sessions[providerID] = sess
		s.metrics.SetActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()

	sess.touch(requestcontext.Now(ctx))
	sess.ensureLoaded(ctx)
	return sess, nil
}

func (s *Service) newSession(providerID id.ProviderID) *Session {
	sess := &Session{providerID: providerID, completions: s.completions, logger: s.logger}

	kycOpts := []kyc.Option{
		kyc.WithLogger(s.logger),
		kyc.WithMetrics(s.kycMetrics),
		kyc.WithListener(sess.stepChanged),
		kyc.WithPollInterval(s.pollInterval),
	}
	if s.deps.KYCSessions != nil {
		kycOpts = append(kycOpts, kyc.WithSessionStore(s.deps.KYCSessions))
	}
	sess.identity = kyc.NewStepHandler(providerID, s.deps.Verifier, kycOpts...)
	sess.license = license.NewStepHandler(providerID, s.deps.Reviewer, s.deps.Documents, s.deps.Submissions,
		license.WithLogger(s.logger),
		license.WithMetrics(s.licenseMetrics),
		license.WithListener(sess.stepChanged),
	)
	sess.profile = profile.NewProfileStep(providerID, s.deps.Profiles, sess.stepChanged)
	sess.market = profile.NewMarketplaceStep(providerID, s.deps.Profiles, sess.stepChanged)

	sess.agg = NewAggregator(s.defs,
		[]steps.Handler{sess.profile, sess.identity, sess.license, sess.market},
		WithAggregatorLogger(s.logger.With("provider_id", providerID.String())),
		WithAggregatorMetrics(s.metrics),
		OnComplete(func(ctx context.Context, st State) {
			s.completed(ctx, providerID, st)
		}),
		OnRearm(func(ctx context.Context) {
			s.reopened(ctx, providerID)
		}),
		OnTransition(func(ctx context.Context, step steps.ID, from, to string) {
			s.record(ctx, audit.Event{
				ProviderID: providerID,
				Action:     audit.ActionStepTransitioned,
				Step:       string(step),
				From:       from,
				To:         to,
			})
		}),
		OnChange(func(st State) {
			if s.notifier != nil {
				s.notifier.Notify(providerID, st)
			}
		}),
	)
	return sess
}

func (s *Service) completed(ctx context.Context, providerID id.ProviderID, st State) {
	s.logger.InfoContext(ctx, "onboarding complete",
		"provider_id", providerID.String(),
		"total_required", st.TotalRequired,
	)
	s.record(ctx, audit.Event{ProviderID: providerID, Action: audit.ActionOnboardingComplete})
	if s.completions != nil {
		if err := s.completions.MarkCompleted(ctx, providerID, requestcontext.Now(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to persist onboarding completion",
				"provider_id", providerID.String(),
				"error", err,
			)
		}
	}
	if s.publisher == nil {
		return
	}
	ev := CompletedEvent{
		ProviderID:  providerID,
		CompletedAt: requestcontext.Now(ctx),
	}
	for _, step := range st.Steps {
		if step.IsComplete {
			ev.Steps = append(ev.Steps, step.ID)
		}
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionPublishWait)
	defer cancel()
	if err := s.publisher.PublishCompleted(pubCtx, ev); err != nil {
		s.metrics.IncCompletionEvent("error")
		s.logger.ErrorContext(ctx, "failed to publish onboarding completion",
			"provider_id", providerID.String(),
			"error", err,
		)
		return
	}
	s.metrics.IncCompletionEvent("ok")
}

// reopened drops the completion marker so the next transition into 100% is
// announced again.
func (s *Service) reopened(ctx context.Context, providerID id.ProviderID) {
	if s.completions == nil {
		return
	}
	if err := s.completions.ClearCompleted(ctx, providerID); err != nil {
		s.logger.WarnContext(ctx, "failed to clear onboarding completion",
			"provider_id", providerID.String(),
			"error", err,
		)
	}
}

// Checklist returns the provider's checklist. A failed load is reported in
// State.Error, not as an error.
func (s *Service) Checklist(ctx context.Context, providerID id.ProviderID) (State, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return State{}, err
	}
	return sess.agg.State(), nil
}

// Refetch re-runs every step's status check.
func (s *Service) Refetch(ctx context.Context, providerID id.ProviderID) (State, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return State{}, err
	}
	st, _ := sess.agg.Refetch(ctx)
	return st, nil
}

func (s *Service) StartIdentity(ctx context.Context, providerID id.ProviderID) (kyc.StartResult, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return kyc.StartResult{}, err
	}
	res, err := sess.identity.StartVerification(ctx, kyc.StartRequest{
		ReturnURL: s.returnURL,
		UserAgent: requestcontext.UserAgent(ctx),
	})
	if err != nil {
		return res, err
	}
	outcome := "created"
	if res.Reused {
		outcome = "reused"
	}
	s.record(ctx, audit.Event{ProviderID: providerID, Action: audit.ActionIdentityStarted, Outcome: outcome})
	return res, nil
}

func (s *Service) IdentityStatus(ctx context.Context, providerID id.ProviderID) (steps.Projection, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return steps.Projection{}, err
	}
	p, err := sess.identity.CheckStatus(ctx)
	if err != nil {
		return p, stepFailure(err)
	}
	return p, nil
}

// IdentityReturn handles the provider redirect. The check result is logged,
// never trusted from the query string.
func (s *Service) IdentityReturn(ctx context.Context, providerID id.ProviderID, sync string) (steps.Projection, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return steps.Projection{}, err
	}
	p, err := sess.identity.HandleReturn(ctx, sync)
	if err != nil {
		return p, stepFailure(err)
	}
	return p, nil
}

func (s *Service) UploadLicense(ctx context.Context, providerID id.ProviderID, doc license.Document) (steps.Projection, error) {
	// size and type are checked before the session loads anything remote
	if _, err := license.Validate(doc); err != nil {
		var stepErr *steps.Error
		errors.As(err, &stepErr)
		return steps.Projection{}, dErrors.Wrap(err, dErrors.CodeValidation, stepErr.Message)
	}
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return steps.Projection{}, err
	}
	p, err := sess.license.UploadDocument(ctx, doc)
	if err != nil {
		return p, err
	}
	s.record(ctx, audit.Event{ProviderID: providerID, Action: audit.ActionLicenseUploaded, Outcome: p.Status})
	return p, nil
}

func (s *Service) LicenseStatus(ctx context.Context, providerID id.ProviderID) (steps.Projection, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return steps.Projection{}, err
	}
	p, err := sess.license.GetStatus(ctx)
	if err != nil {
		return p, stepFailure(err)
	}
	return p, nil
}

// HandleReviewEvent routes a pushed review decision to the owning provider.
func (s *Service) HandleReviewEvent(ctx context.Context, ev license.ReviewEvent) error {
	if ev.DocumentRef == "" {
		return dErrors.New(dErrors.CodeValidation, "document_ref is required")
	}
	sub, err := s.deps.Submissions.FindByDocumentRef(ctx, ev.DocumentRef)
	if errors.Is(err, license.ErrSubmissionNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "license submission not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load license submission")
	}
	sess, err := s.session(ctx, sub.ProviderID)
	if err != nil {
		return err
	}
	if err := sess.license.HandleReviewEvent(ctx, ev); err != nil {
		return err
	}
	s.record(ctx, audit.Event{ProviderID: sub.ProviderID, Action: audit.ActionReviewReceived, Outcome: string(ev.Status)})
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, providerID id.ProviderID, req profile.UpdateRequest) (*profile.Profile, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return nil, err
	}
	p, err := s.profiles.Update(ctx, providerID, req)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{ProviderID: providerID, Action: audit.ActionProfileUpdated})
	sess.profile.Set(p)
	sess.market.Set(p)
	return p, nil
}

// PublishListing publishes the marketplace listing once its prerequisite
// steps are complete.
func (s *Service) PublishListing(ctx context.Context, providerID id.ProviderID) (*profile.Profile, error) {
	sess, err := s.session(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !sess.agg.PrerequisitesMet(steps.IDMarketplace) {
		return nil, dErrors.New(dErrors.CodeConflict, "completa los pasos anteriores antes de publicar")
	}
	p, err := s.profiles.Publish(ctx, providerID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{ProviderID: providerID, Action: audit.ActionListingPublished})
	sess.profile.Set(p)
	sess.market.Set(p)
	return p, nil
}

// Release closes the provider's session, cancelling any poller.
func (s *Service) Release(providerID id.ProviderID) {
	s.mu.Lock()
	sess, ok := s.sessions[providerID]
	delete(s.sessions, providerID)
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// EvictIdle closes sessions not used since idleTTL before now.
func (s *Service) EvictIdle(now time.Time) int {
	var idle []*Session
	s.mu.Lock()
	for pid, sess := range s.sessions {
		if sess.idleSince(now) >= s.idleTTL {
			idle = append(idle, sess)
			delete(s.sessions, pid)
		}
	}
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()

	for _, sess := range idle {
		sess.Close()
	}
	s.metrics.IncEvicted(len(idle))
	return len(idle)
}

// ActiveSessions is the number of live sessions.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close tears down every session.
func (s *Service) Close() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[id.ProviderID]*Session)
	s.metrics.SetActiveSessions(0)
	s.mu.Unlock()
	for _, sess := range all {
		sess.Close()
	}
}

func (s *Service) record(ctx context.Context, ev audit.Event) {
	if s.auditor != nil {
		s.auditor.Emit(ctx, ev)
	}
}

// stepFailure maps a failed status check to a domain error carrying only the
// classified message.
func stepFailure(err error) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	stepErr := providers.StepError(err)
	code := dErrors.CodeUnavailable
	if stepErr.Kind == steps.KindValidation {
		code = dErrors.CodeValidation
	}
	return dErrors.Wrap(err, code, stepErr.Message)
}
