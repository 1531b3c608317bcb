package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
	"onboarding-gateway/pkg/requestcontext"
)

// UpdateRequest carries the editable profile fields.
type UpdateRequest struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
	City        string `json:"city"`
	Specialty   string `json:"specialty"`
	Bio         string `json:"bio"`
}

func (r *UpdateRequest) Normalize() {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Phone = strings.TrimSpace(r.Phone)
	r.City = strings.TrimSpace(r.City)
	r.Specialty = strings.TrimSpace(r.Specialty)
	r.Bio = strings.TrimSpace(r.Bio)
}

func (r *UpdateRequest) Validate() error {
	r.Normalize()
	if len(r.DisplayName) > 120 {
		return dErrors.New(dErrors.CodeValidation, "display_name must be at most 120 characters")
	}
	if len(r.Bio) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "bio must be at most 2000 characters")
	}
	for _, c := range r.Phone {
		if !strings.ContainsRune("+0123456789 -()", c) {
			return dErrors.New(dErrors.CodeValidation, "phone contains invalid characters")
		}
	}
	return nil
}

// Service writes profiles.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Update overwrites the editable fields. A published listing stays published.
func (s *Service) Update(ctx context.Context, providerID id.ProviderID, req UpdateRequest) (*Profile, error) {
	p, err := s.load(ctx, providerID)
	if err != nil {
		return nil, err
	}
	p.DisplayName = req.DisplayName
	p.Phone = req.Phone
	p.City = req.City
	p.Specialty = req.Specialty
	p.Bio = req.Bio
	p.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
	}
	return p, nil
}

// Publish makes the listing visible. The profile must be complete.
func (s *Service) Publish(ctx context.Context, providerID id.ProviderID) (*Profile, error) {
	p, err := s.load(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !p.Complete() {
		return nil, dErrors.New(dErrors.CodeValidation, "complete your profile before publishing")
	}
	if p.Published {
		return p, nil
	}
	now := requestcontext.Now(ctx)
	p.Published = true
	p.PublishedAt = &now
	p.UpdatedAt = now
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish listing")
	}
	s.logger.InfoContext(ctx, "marketplace listing published", "provider_id", providerID.String())
	return p, nil
}

func (s *Service) load(ctx context.Context, providerID id.ProviderID) (*Profile, error) {
	p, err := s.store.Get(ctx, providerID)
	if errors.Is(err, ErrNotFound) {
		return &Profile{ProviderID: providerID}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return p, nil
}
