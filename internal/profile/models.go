// Package profile backs the two plain-CRUD checklist steps: the provider's
// public profile and its marketplace listing.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/platform/sentinel"
)

// Profile is what the marketplace shows about a provider.
type Profile struct {
	ProviderID  id.ProviderID
	DisplayName string
	Phone       string
	City        string
	Specialty   string
	Bio         string
	Published   bool
	PublishedAt *time.Time
	UpdatedAt   time.Time
}

// Complete reports whether every field the listing needs is filled in.
func (p *Profile) Complete() bool {
	return p != nil &&
		strings.TrimSpace(p.DisplayName) != "" &&
		strings.TrimSpace(p.Phone) != "" &&
		strings.TrimSpace(p.City) != "" &&
		strings.TrimSpace(p.Specialty) != ""
}

// Store persists profiles.
type Store interface {
	Get(ctx context.Context, providerID id.ProviderID) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
}

// ErrNotFound is returned when a provider has no profile yet.
var ErrNotFound = fmt.Errorf("profile %w", sentinel.ErrNotFound)
