// Package store persists license submissions with their superseded history.
package store

import (
	"context"
	"slices"
	"sync"

	"onboarding-gateway/internal/license"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/requestcontext"
)

// InMemory keeps every submission; the newest non-superseded one per provider is current.
type InMemory struct {
	mu          sync.RWMutex
	submissions map[id.SubmissionID]*license.Submission
	byProvider  map[id.ProviderID][]id.SubmissionID
}

func NewInMemory() *InMemory {
	return &InMemory{
		submissions: make(map[id.SubmissionID]*license.Submission),
		byProvider:  make(map[id.ProviderID][]id.SubmissionID),
	}
}

func (s *InMemory) Create(ctx context.Context, sub *license.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := requestcontext.Now(ctx)
	for _, prevID := range s.byProvider[sub.ProviderID] {
		prev := s.submissions[prevID]
		if prev.SupersededAt == nil {
			t := now
			prev.SupersededAt = &t
		}
	}
	stored := *sub
	s.submissions[sub.ID] = &stored
	s.byProvider[sub.ProviderID] = append(s.byProvider[sub.ProviderID], sub.ID)
	return nil
}

func (s *InMemory) Current(_ context.Context, providerID id.ProviderID) (*license.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProvider[providerID]
	for i := len(ids) - 1; i >= 0; i-- {
		sub := s.submissions[ids[i]]
		if sub.SupersededAt == nil {
			out := *sub
			return &out, nil
		}
	}
	return nil, license.ErrSubmissionNotFound
}

func (s *InMemory) FindByDocumentRef(_ context.Context, documentRef string) (*license.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.submissions {
		if sub.DocumentRef == documentRef {
			out := *sub
			return &out, nil
		}
	}
	return nil, license.ErrSubmissionNotFound
}

func (s *InMemory) UpdateStatus(_ context.Context, sub *license.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.submissions[sub.ID]
	if !ok {
		return license.ErrSubmissionNotFound
	}
	stored.Status = sub.Status
	stored.RejectionReason = sub.RejectionReason
	stored.ReviewedAt = sub.ReviewedAt
	return nil
}

// History returns all submissions for the provider, newest first.
func (s *InMemory) History(_ context.Context, providerID id.ProviderID) ([]*license.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byProvider[providerID]
	out := make([]*license.Submission, 0, len(ids))
	for _, subID := range slices.Backward(ids) {
		sub := *s.submissions[subID]
		out = append(out, &sub)
	}
	return out, nil
}

func (s *InMemory) HasDigest(_ context.Context, providerID id.ProviderID, digest string, statuses []license.Status) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, subID := range s.byProvider[providerID] {
		sub := s.submissions[subID]
		if sub.Digest == digest && slices.Contains(statuses, sub.Status) {
			return true, nil
		}
	}
	return false, nil
}
