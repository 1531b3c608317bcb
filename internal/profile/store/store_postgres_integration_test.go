//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"onboarding-gateway/internal/profile"
	"onboarding-gateway/internal/profile/store"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/testutil/containers"
)

type ProfileStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestProfileStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProfileStoreSuite))
}

func (s *ProfileStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *ProfileStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "provider_profiles"))
}

func (s *ProfileStoreSuite) TestMissingProfile() {
	_, err := s.store.Get(context.Background(), id.ProviderID(uuid.New()))
	s.ErrorIs(err, profile.ErrNotFound)
}

func (s *ProfileStoreSuite) TestSaveUpserts() {
	ctx := context.Background()
	providerID := id.ProviderID(uuid.New())
	updated := time.Now().UTC().Truncate(time.Microsecond)

	p := &profile.Profile{
		ProviderID:  providerID,
		DisplayName: "Luis Ortega",
		Phone:       "+57 300 555 0101",
		City:        "Medellín",
		Specialty:   "Psicología",
		UpdatedAt:   updated,
	}
	s.Require().NoError(s.store.Save(ctx, p))

	got, err := s.store.Get(ctx, providerID)
	s.Require().NoError(err)
	s.Equal("Luis Ortega", got.DisplayName)
	s.True(got.Complete())
	s.False(got.Published)
	s.Nil(got.PublishedAt)

	published := updated.Add(time.Minute)
	p.Published = true
	p.PublishedAt = &published
	p.Bio = "Terapia cognitivo-conductual"
	p.UpdatedAt = published
	s.Require().NoError(s.store.Save(ctx, p))

	got, err = s.store.Get(ctx, providerID)
	s.Require().NoError(err)
	s.True(got.Published)
	s.Require().NotNil(got.PublishedAt)
	s.True(published.Equal(*got.PublishedAt))
	s.Equal("Terapia cognitivo-conductual", got.Bio)
}
