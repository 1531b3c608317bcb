package kyc_test

//go:generate mockgen -source=verifier.go -destination=mocks/mocks.go -package=mocks Verifier,SessionStore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"onboarding-gateway/internal/kyc"
	"onboarding-gateway/internal/kyc/mocks"
	"onboarding-gateway/internal/kyc/store"
	"onboarding-gateway/internal/providers"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
	"onboarding-gateway/pkg/requestcontext"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// scriptedVerifier answers FetchStatus from a queue; the last entry repeats.
type scriptedVerifier struct {
	mu      sync.Mutex
	replies []reply
	calls   atomic.Int32
	session *kyc.Session
}

type reply struct {
	status  kyc.Status
	details string
	err     error
	gate    chan struct{}
}

func (v *scriptedVerifier) CreateSession(context.Context, kyc.CreateSessionRequest) (*kyc.Session, error) {
	s := *v.session
	return &s, nil
}

func (v *scriptedVerifier) FetchStatus(ctx context.Context, _ string) (kyc.StatusReport, error) {
	v.calls.Add(1)
	v.mu.Lock()
	r := v.replies[0]
	if len(v.replies) > 1 {
		v.replies = v.replies[1:]
	}
	v.mu.Unlock()
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return kyc.StatusReport{}, ctx.Err()
		}
	}
	if r.err != nil {
		return kyc.StatusReport{}, r.err
	}
	return kyc.StatusReport{Status: r.status, Details: r.details}, nil
}

func newSession() *kyc.Session {
	return &kyc.Session{
		ID:          "sess-" + uuid.NewString()[:8],
		ExternalURL: "https://verify.example.com/flow/abc",
		ExpiresAt:   time.Now().Add(30 * time.Minute),
		Status:      kyc.StatusPending,
	}
}

func outage() error {
	return providers.NewProviderError(providers.ErrorProviderOutage, "kyc", "unexpected status 503", nil)
}

type StepHandlerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	verifier   *mocks.MockVerifier
	sessions   *mocks.MockSessionStore
	providerID id.ProviderID
	handler    *kyc.StepHandler
	notified   atomic.Int32
}

func TestStepHandlerSuite(t *testing.T) {
	suite.Run(t, new(StepHandlerSuite))
}

func (s *StepHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.sessions = mocks.NewMockSessionStore(s.ctrl)
	s.providerID = id.ProviderID(uuid.New())
	s.notified.Store(0)
	s.handler = kyc.NewStepHandler(s.providerID, s.verifier,
		kyc.WithSessionStore(s.sessions),
		kyc.WithPollInterval(time.Hour),
		kyc.WithListener(func(steps.ID) { s.notified.Add(1) }),
	)
}

func (s *StepHandlerSuite) TearDownTest() {
	s.handler.Close()
}

// =============================================================================
// StartVerification
// =============================================================================

func (s *StepHandlerSuite) TestStartVerification() {
	ctx := context.Background()

	s.Run("creates a session and returns the redirect", func() {
		session := newSession()
		s.verifier.EXPECT().CreateSession(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req kyc.CreateSessionRequest) (*kyc.Session, error) {
				s.Equal(s.providerID.String(), req.Reference)
				s.Equal("https://app.example.com/onboarding/identity/return", req.ReturnURL)
				s.Equal("mobile", req.Platform)
				return session, nil
			})
		s.sessions.EXPECT().Save(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, saved *kyc.Session) error {
				s.Equal(s.providerID, saved.ProviderID)
				s.Equal(kyc.StatusInProgress, saved.Status)
				return nil
			})
		s.verifier.EXPECT().FetchStatus(gomock.Any(), s.providerID.String()).
			Return(kyc.StatusReport{Status: kyc.StatusInProgress}, nil).AnyTimes()

		res, err := s.handler.StartVerification(ctx, kyc.StartRequest{
			ReturnURL: "https://app.example.com/onboarding/identity/return",
			UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		})
		s.Require().NoError(err)
		s.Equal(session.ExternalURL, res.RedirectURL)
		s.Equal(session.ID, res.SessionID)
		s.False(res.Reused)

		p := s.handler.Projection()
		s.Equal(string(kyc.StatusInProgress), p.Status)
		s.True(p.ActionDisabled)
		s.False(p.Complete)
		s.Nil(p.Err)
		s.GreaterOrEqual(s.notified.Load(), int32(2))
	})

	s.Run("is a no-op while a session is in flight", func() {
		res, err := s.handler.StartVerification(ctx, kyc.StartRequest{})
		s.Require().NoError(err)
		s.True(res.Reused)
		s.Equal("https://verify.example.com/flow/abc", res.RedirectURL)
	})
}

func (s *StepHandlerSuite) TestStartVerificationReplacesExpiredSession() {
	ctx := context.Background()
	first, second := newSession(), newSession()
	second.ExpiresAt = first.ExpiresAt.Add(time.Hour)
	gomock.InOrder(
		s.verifier.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(first, nil),
		s.verifier.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(second, nil),
	)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
		Return(kyc.StatusReport{Status: kyc.StatusInProgress}, nil).AnyTimes()

	_, err := s.handler.StartVerification(ctx, kyc.StartRequest{})
	s.Require().NoError(err)

	res, err := s.handler.StartVerification(requestcontext.WithTime(ctx, first.ExpiresAt.Add(-time.Minute)), kyc.StartRequest{})
	s.Require().NoError(err)
	s.True(res.Reused)
	s.Equal(first.ID, res.SessionID)

	res, err = s.handler.StartVerification(requestcontext.WithTime(ctx, first.ExpiresAt.Add(time.Second)), kyc.StartRequest{})
	s.Require().NoError(err)
	s.False(res.Reused)
	s.Equal(second.ID, res.SessionID)
	s.Equal(kyc.StatusInProgress, s.handler.Status())
}

func (s *StepHandlerSuite) TestStartVerificationFailure() {
	ctx := context.Background()
	s.verifier.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(nil, outage())

	_, err := s.handler.StartVerification(ctx, kyc.StartRequest{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	p := s.handler.Projection()
	s.Equal(string(kyc.StatusError), p.Status)
	s.False(p.ActionDisabled)
	s.Require().NotNil(p.Err)
	s.Equal(steps.KindTransient, p.Err.Kind)
	s.False(s.handler.Polling())
}

func (s *StepHandlerSuite) TestStartVerificationAfterVerifiedIsRejected() {
	ctx := context.Background()
	s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
		Return(kyc.StatusReport{Status: kyc.StatusVerified}, nil)

	_, err := s.handler.CheckStatus(ctx)
	s.Require().NoError(err)

	_, err = s.handler.StartVerification(ctx, kyc.StartRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *StepHandlerSuite) TestStartVerificationSaveFailureIsNotFatal() {
	ctx := context.Background()
	s.verifier.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(newSession(), nil)
	s.sessions.EXPECT().Save(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
		Return(kyc.StatusReport{Status: kyc.StatusInProgress}, nil).AnyTimes()

	res, err := s.handler.StartVerification(ctx, kyc.StartRequest{})
	s.Require().NoError(err)
	s.NotEmpty(res.RedirectURL)
	s.Equal(kyc.StatusInProgress, s.handler.Status())
}

// =============================================================================
// CheckStatus
// =============================================================================

func (s *StepHandlerSuite) TestCheckStatus() {
	ctx := context.Background()

	s.Run("not started without a session does not poll", func() {
		s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
			Return(kyc.StatusReport{Status: kyc.StatusNotStarted}, nil)

		p, err := s.handler.CheckStatus(ctx)
		s.Require().NoError(err)
		s.Equal(string(kyc.StatusNotStarted), p.Status)
		s.False(p.ActionDisabled)
		s.False(s.handler.Polling())
	})

	s.Run("verified completes the step", func() {
		s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
			Return(kyc.StatusReport{Status: kyc.StatusVerified}, nil)

		p, err := s.handler.CheckStatus(ctx)
		s.Require().NoError(err)
		s.True(p.Complete)
		s.False(p.ActionDisabled)
		s.Equal("Verificado", p.StatusText)
		s.True(s.handler.IsTerminal())
	})

	s.Run("verified does not regress without a rejection", func() {
		s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
			Return(kyc.StatusReport{Status: kyc.StatusInProgress}, nil)

		p, err := s.handler.CheckStatus(ctx)
		s.Require().NoError(err)
		s.True(p.Complete)
	})

	s.Run("an explicit rejection takes a verified step back", func() {
		s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
			Return(kyc.StatusReport{Status: kyc.StatusRejected, Details: "documento adulterado"}, nil)

		p, err := s.handler.CheckStatus(ctx)
		s.Require().NoError(err)
		s.False(p.Complete)
		s.False(p.ActionDisabled)
		s.Require().NotNil(p.Err)
		s.Equal(steps.KindTerminalNegative, p.Err.Kind)
		s.Equal("documento adulterado", p.Err.Message)
	})
}

func (s *StepHandlerSuite) TestCheckStatusUnknownValue() {
	ctx := context.Background()
	s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
		Return(kyc.StatusReport{Status: kyc.Status("on_hold")}, nil)

	p, err := s.handler.CheckStatus(ctx)
	s.Require().NoError(err)
	s.True(p.ActionDisabled)
	s.Require().NotNil(p.Err)
	s.Equal(steps.KindConfiguration, p.Err.Kind)
	s.Equal(string(kyc.StatusNotStarted), p.Status)
}

func (s *StepHandlerSuite) TestCheckStatusFailureIsNotNotStarted() {
	ctx := context.Background()
	s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).Return(kyc.StatusReport{}, outage())

	p, err := s.handler.CheckStatus(ctx)
	s.Require().Error(err)
	s.Require().NotNil(p.Err)
	s.Equal(steps.KindTransient, p.Err.Kind)
	s.Equal(1, s.handler.TransientFailures())
}

func (s *StepHandlerSuite) TestResumeFromStore() {
	ctx := context.Background()
	session := newSession()
	session.ProviderID = s.providerID
	s.sessions.EXPECT().FindActive(gomock.Any(), s.providerID).Return(session, nil)

	s.Require().NoError(s.handler.Resume(ctx))
	s.Equal(kyc.StatusInProgress, s.handler.Status())

	res, err := s.handler.StartVerification(ctx, kyc.StartRequest{})
	s.Require().NoError(err)
	s.True(res.Reused)
	s.Equal(session.ID, res.SessionID)
}

func (s *StepHandlerSuite) TestResumeWithoutSession() {
	s.sessions.EXPECT().FindActive(gomock.Any(), s.providerID).Return(nil, store.ErrNotFound)

	s.Require().NoError(s.handler.Resume(context.Background()))
	s.Equal(kyc.StatusNotStarted, s.handler.Status())
}

func (s *StepHandlerSuite) TestHandleReturnIgnoresSyncValue() {
	ctx := context.Background()
	s.verifier.EXPECT().FetchStatus(gomock.Any(), gomock.Any()).
		Return(kyc.StatusReport{Status: kyc.StatusRejected}, nil)

	p, err := s.handler.HandleReturn(ctx, "success")
	s.Require().NoError(err)
	s.Equal(string(kyc.StatusRejected), p.Status)
	s.False(p.Complete)
	s.Require().NotNil(p.Err)
	s.Equal("el proveedor rechazó la verificación de identidad", p.Err.Message)
}

// =============================================================================
// Polling
// =============================================================================

func startPolling(t *testing.T, v *scriptedVerifier, opts ...kyc.Option) *kyc.StepHandler {
	t.Helper()
	v.session = newSession()
	opts = append([]kyc.Option{kyc.WithPollInterval(tick), kyc.WithSessionStore(store.NewInMemory())}, opts...)
	h := kyc.NewStepHandler(id.ProviderID(uuid.New()), v, opts...)
	t.Cleanup(h.Close)
	_, err := h.StartVerification(context.Background(), kyc.StartRequest{})
	if err != nil {
		t.Fatalf("start verification: %v", err)
	}
	return h
}

func (s *StepHandlerSuite) TestPollingStopsOnVerified() {
	v := &scriptedVerifier{replies: []reply{
		{status: kyc.StatusInProgress},
		{status: kyc.StatusInProgress},
		{status: kyc.StatusVerified},
	}}
	h := startPolling(s.T(), v)

	s.Eventually(func() bool { return h.Status() == kyc.StatusVerified }, waitFor, tick)
	s.Eventually(func() bool { return !h.Polling() }, waitFor, tick)
	calls := v.calls.Load()
	time.Sleep(10 * tick)
	s.Equal(calls, v.calls.Load())
	s.True(h.Projection().Complete)
}

func (s *StepHandlerSuite) TestPollingStopsOnRejectedAndError() {
	for _, status := range []kyc.Status{kyc.StatusRejected, kyc.StatusError} {
		s.Run(string(status), func() {
			v := &scriptedVerifier{replies: []reply{{status: kyc.StatusInProgress}, {status: status}}}
			h := startPolling(s.T(), v)

			s.Eventually(func() bool { return h.Status() == status && !h.Polling() }, waitFor, tick)
			s.False(h.Projection().ActionDisabled)
		})
	}
}

func (s *StepHandlerSuite) TestPollingSurvivesTransientFailures() {
	v := &scriptedVerifier{replies: []reply{
		{err: outage()},
		{err: outage()},
		{err: outage()},
		{status: kyc.StatusInProgress},
	}}
	h := startPolling(s.T(), v)

	s.Eventually(func() bool { return v.calls.Load() >= 5 }, waitFor, tick)
	s.True(h.Polling())
	s.Equal(kyc.StatusInProgress, h.Status())
	s.Equal(0, h.TransientFailures())
	s.Nil(h.Projection().Err)
}

func (s *StepHandlerSuite) TestPollingContinuesOnExpired() {
	v := &scriptedVerifier{replies: []reply{{status: kyc.StatusExpired}}}
	h := startPolling(s.T(), v)

	s.Eventually(func() bool { return h.Status() == kyc.StatusExpired }, waitFor, tick)
	calls := v.calls.Load()
	s.Eventually(func() bool { return v.calls.Load() > calls+2 }, waitFor, tick)
	s.True(h.Polling())
	s.True(h.IsTerminal())

	p := h.Projection()
	s.False(p.ActionDisabled)
	s.Require().NotNil(p.Err)
	s.Equal(steps.KindTerminalNegative, p.Err.Kind)
}

func (s *StepHandlerSuite) TestNewSessionSupersedesPoller() {
	v := &scriptedVerifier{replies: []reply{{status: kyc.StatusAbandoned}}}
	h := startPolling(s.T(), v)
	s.Eventually(func() bool { return h.Status() == kyc.StatusAbandoned }, waitFor, tick)

	v.mu.Lock()
	v.replies = []reply{{status: kyc.StatusInProgress}}
	v.mu.Unlock()
	res, err := h.StartVerification(context.Background(), kyc.StartRequest{})
	s.Require().NoError(err)
	s.False(res.Reused)
	s.Equal(kyc.StatusInProgress, h.Status())
	s.True(h.Polling())
}

func (s *StepHandlerSuite) TestStaleResponseIsDiscarded() {
	gate := make(chan struct{})
	v := &scriptedVerifier{replies: []reply{
		{status: kyc.StatusInProgress, gate: gate},
		{status: kyc.StatusVerified},
	}}
	// the poller's first check blocks on gate; a direct check overtakes it
	h := startPolling(s.T(), v, kyc.WithPollInterval(time.Hour))
	s.Eventually(func() bool { return v.calls.Load() == 1 }, waitFor, tick)

	p, err := h.CheckStatus(context.Background())
	s.Require().NoError(err)
	s.True(p.Complete)

	close(gate)
	s.Eventually(func() bool { return !h.Polling() }, waitFor, tick)
	s.Equal(kyc.StatusVerified, h.Status())
}

func (s *StepHandlerSuite) TestCloseStopsPolling() {
	v := &scriptedVerifier{replies: []reply{{status: kyc.StatusInProgress}}}
	h := startPolling(s.T(), v)
	s.Eventually(func() bool { return v.calls.Load() >= 2 }, waitFor, tick)

	h.Close()
	h.Close()
	s.False(h.Polling())
	time.Sleep(3 * tick)
	calls := v.calls.Load()
	time.Sleep(10 * tick)
	s.Equal(calls, v.calls.Load())

	_, err := h.StartVerification(context.Background(), kyc.StartRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
