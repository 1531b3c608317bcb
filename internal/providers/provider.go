// Package providers holds what is shared by the upstream verification
// clients: the failure taxonomy and a registry used for health reporting.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Kind identifies what an upstream verifies.
type Kind string

const (
	KindIdentity Kind = "identity"
	KindLicense  Kind = "license"
)

// Provider is implemented by every upstream client.
type Provider interface {
	ID() string
	Kind() Kind
	Health(ctx context.Context) error
}

// Registry keeps the configured upstreams.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider; IDs must be unique.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.providers[id] = p
	return nil
}

func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// Health checks every provider and returns the failures keyed by provider ID.
func (r *Registry) Health(ctx context.Context) map[string]error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	failures := make(map[string]error)
	for _, id := range ids {
		p, _ := r.Get(id)
		if err := p.Health(ctx); err != nil {
			failures[id] = err
		}
	}
	return failures
}
