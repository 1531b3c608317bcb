package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
)

// Step is the checklist handler for either the profile or the marketplace
// step. Both read the same record; they differ only in what counts as done.
type Step struct {
	stepID     steps.ID
	providerID id.ProviderID
	store      Store
	done       func(*Profile) bool
	listener   steps.Listener

	mu      sync.Mutex
	profile *Profile
	loaded  bool
}

// NewProfileStep is complete once the profile has every required field.
func NewProfileStep(providerID id.ProviderID, store Store, listener steps.Listener) *Step {
	return &Step{
		stepID:     steps.IDProfile,
		providerID: providerID,
		store:      store,
		done:       (*Profile).Complete,
		listener:   listener,
	}
}

// NewMarketplaceStep is complete once the listing is published.
func NewMarketplaceStep(providerID id.ProviderID, store Store, listener steps.Listener) *Step {
	return &Step{
		stepID:     steps.IDMarketplace,
		providerID: providerID,
		store:      store,
		done:       func(p *Profile) bool { return p != nil && p.Published },
		listener:   listener,
	}
}

func (s *Step) ID() steps.ID { return s.stepID }

func (s *Step) CheckStatus(ctx context.Context) (steps.Projection, error) {
	p, err := s.store.Get(ctx, s.providerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return s.Projection(), fmt.Errorf("load profile: %w", err)
	}
	s.Set(p)
	return s.Projection(), nil
}

// Set replaces the cached record after a write elsewhere and notifies the
// listener when completion changed.
func (s *Step) Set(p *Profile) {
	s.mu.Lock()
	before := s.loaded && s.done(s.profile)
	s.profile = p
	s.loaded = true
	after := s.done(p)
	s.mu.Unlock()
	if before != after && s.listener != nil {
		s.listener(s.stepID)
	}
}

func (s *Step) Projection() steps.Projection {
	s.mu.Lock()
	defer s.mu.Unlock()
	complete := s.done(s.profile)
	p := steps.Projection{Status: "incomplete", StatusText: "Pendiente", Complete: complete}
	if complete {
		p.Status = "complete"
		p.StatusText = "Completado"
	}
	return p
}

// IsTerminal is true once complete; these steps never wait on a third party.
func (s *Step) IsTerminal() bool {
	return s.Projection().Complete
}

func (s *Step) Close() {}
