package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"onboarding-gateway/internal/kyc"
	"onboarding-gateway/internal/license"
	"onboarding-gateway/internal/profile"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
)

// Session is one provider's checklist and the handlers behind it.
type Session struct {
	providerID id.ProviderID
	identity   *kyc.StepHandler
	license    *license.StepHandler
	profile    *profile.Step
	market     *profile.Step
	agg        *Aggregator

	completions CompletionStore
	logger      *slog.Logger

	loadMu sync.Mutex
	loaded bool

	mu       sync.Mutex
	lastSeen time.Time
	closed   bool
}

func (s *Session) ProviderID() id.ProviderID { return s.providerID }

// Aggregator exposes the checklist for read-only use.
func (s *Session) Aggregator() *Aggregator { return s.agg }

// stepChanged is every handler's listener.
func (s *Session) stepChanged(steps.ID) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.agg == nil {
		return
	}
	s.agg.Evaluate(context.Background())
}

// ensureLoaded restores persisted handler state and runs the first refetch.
// A failure is kept in the checklist error state; the session still counts
// as loaded so the caller can retry through Refetch.
func (s *Session) ensureLoaded(ctx context.Context) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded {
		return
	}
	s.loaded = true

	if s.completions != nil {
		done, err := s.completions.IsCompleted(ctx, s.providerID)
		if err != nil {
			// keep the gate armed
			s.logger.WarnContext(ctx, "failed to read onboarding completion",
				"provider_id", s.providerID.String(),
				"error", err,
			)
		} else if done {
			s.agg.disarm()
		}
	}

	restoreErr := errors.Join(
		s.identity.Resume(ctx),
		s.license.Load(ctx),
	)
	_, err := s.agg.Refetch(ctx)
	if restoreErr != nil && err == nil {
		s.agg.setLoadErr(steps.NewError(steps.KindTransient, loadFailedMessage))
		s.agg.Evaluate(ctx)
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Close cancels pollers and drops late results. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.agg.Close()
}
