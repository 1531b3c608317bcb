package store

import (
	"context"
	"sync"
	"time"

	"onboarding-gateway/internal/kyc"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/requestcontext"
)

// InMemory is the SessionStore used in tests and single-instance deployments.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[id.ProviderID]kyc.Session
}

func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[id.ProviderID]kyc.Session)}
}

func (s *InMemory) Save(_ context.Context, session *kyc.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ProviderID] = *session
	return nil
}

// FindActive returns the stored session unless it has expired.
func (s *InMemory) FindActive(ctx context.Context, providerID id.ProviderID) (*kyc.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[providerID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if session.Expired(requestcontext.Now(ctx)) {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (s *InMemory) Delete(_ context.Context, providerID id.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, providerID)
	return nil
}

// Len is the number of stored markers, expired ones included.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// PurgeExpired drops markers whose session expired before now.
func (s *InMemory) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for pid, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, pid)
			n++
		}
	}
	return n
}
