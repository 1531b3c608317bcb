package store

import (
	"context"
	"sync"

	"onboarding-gateway/internal/audit"
	id "onboarding-gateway/pkg/domain"
)

type InMemory struct {
	mu     sync.RWMutex
	events map[id.ProviderID][]audit.Event
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.ProviderID][]audit.Event)}
}

func (s *InMemory) Append(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ProviderID] = append(s.events[ev.ProviderID], ev)
	return nil
}

// ListByProvider returns up to limit events, newest first. limit <= 0 means all.
func (s *InMemory) ListByProvider(_ context.Context, providerID id.ProviderID, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.events[providerID]
	n := len(all)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]audit.Event, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
