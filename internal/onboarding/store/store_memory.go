package store

import (
	"context"
	"sync"
	"time"

	id "onboarding-gateway/pkg/domain"
)

// InMemory keeps completion markers for the life of the process.
type InMemory struct {
	mu        sync.RWMutex
	completed map[id.ProviderID]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{completed: make(map[id.ProviderID]time.Time)}
}

func (s *InMemory) IsCompleted(_ context.Context, providerID id.ProviderID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.completed[providerID]
	return ok, nil
}

func (s *InMemory) MarkCompleted(_ context.Context, providerID id.ProviderID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[providerID] = at
	return nil
}

func (s *InMemory) ClearCompleted(_ context.Context, providerID id.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.completed, providerID)
	return nil
}
