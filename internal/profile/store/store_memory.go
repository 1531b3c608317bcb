// Package store persists provider profiles.
package store

import (
	"context"
	"sync"

	"onboarding-gateway/internal/profile"
	id "onboarding-gateway/pkg/domain"
)

type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.ProviderID]profile.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.ProviderID]profile.Profile)}
}

func (s *InMemory) Get(_ context.Context, providerID id.ProviderID) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[providerID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) Save(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ProviderID] = *p
	return nil
}
