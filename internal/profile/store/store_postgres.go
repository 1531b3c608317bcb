package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"onboarding-gateway/internal/profile"
	id "onboarding-gateway/pkg/domain"
)

// PostgresStore persists profiles in the provider_profiles table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, providerID id.ProviderID) (*profile.Profile, error) {
	var (
		p           profile.Profile
		publishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, phone, city, specialty, bio, published, published_at, updated_at
		FROM provider_profiles
		WHERE provider_id = $1
	`, uuid.UUID(providerID)).Scan(
		&p.DisplayName, &p.Phone, &p.City, &p.Specialty, &p.Bio,
		&p.Published, &publishedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, profile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.ProviderID = providerID
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	return &p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *profile.Profile) error {
	query := `
		INSERT INTO provider_profiles
			(provider_id, display_name, phone, city, specialty, bio, published, published_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			phone = EXCLUDED.phone,
			city = EXCLUDED.city,
			specialty = EXCLUDED.specialty,
			bio = EXCLUDED.bio,
			published = EXCLUDED.published,
			published_at = EXCLUDED.published_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(p.ProviderID), p.DisplayName, p.Phone, p.City, p.Specialty, p.Bio,
		p.Published, p.PublishedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
