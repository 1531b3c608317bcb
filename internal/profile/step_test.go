package profile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-gateway/internal/profile"
	"onboarding-gateway/internal/profile/store"
	"onboarding-gateway/internal/steps"
	id "onboarding-gateway/pkg/domain"
	dErrors "onboarding-gateway/pkg/domain-errors"
)

type failingStore struct{}

func (failingStore) Get(context.Context, id.ProviderID) (*profile.Profile, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Save(context.Context, *profile.Profile) error { return nil }

func TestProfileAndMarketplaceSteps(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemory()
	svc := profile.NewService(st, nil)
	providerID := id.ProviderID(uuid.New())

	var notified []steps.ID
	listener := func(stepID steps.ID) { notified = append(notified, stepID) }
	profileStep := profile.NewProfileStep(providerID, st, listener)
	marketStep := profile.NewMarketplaceStep(providerID, st, listener)

	p, err := profileStep.CheckStatus(ctx)
	require.NoError(t, err)
	assert.False(t, p.Complete)

	t.Run("publishing an incomplete profile fails", func(t *testing.T) {
		_, err := svc.Publish(ctx, providerID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("a complete profile completes the profile step", func(t *testing.T) {
		saved, err := svc.Update(ctx, providerID, profile.UpdateRequest{
			DisplayName: "Ana Torres",
			Phone:       "+52 55 1234 5678",
			City:        "CDMX",
			Specialty:   "fisioterapia",
		})
		require.NoError(t, err)
		profileStep.Set(saved)
		marketStep.Set(saved)

		assert.True(t, profileStep.Projection().Complete)
		assert.False(t, marketStep.Projection().Complete)
		assert.Equal(t, []steps.ID{steps.IDProfile}, notified)
	})

	t.Run("publishing completes the marketplace step", func(t *testing.T) {
		published, err := svc.Publish(ctx, providerID)
		require.NoError(t, err)
		require.NotNil(t, published.PublishedAt)

		p, err := marketStep.CheckStatus(ctx)
		require.NoError(t, err)
		assert.True(t, p.Complete)
		assert.True(t, marketStep.IsTerminal())
	})
}

func TestStepStoreFailure(t *testing.T) {
	step := profile.NewProfileStep(id.ProviderID(uuid.New()), failingStore{}, nil)
	_, err := step.CheckStatus(context.Background())
	assert.Error(t, err)
}

func TestUpdateRequestValidate(t *testing.T) {
	req := profile.UpdateRequest{Phone: "555-CALL-NOW"}
	assert.Error(t, req.Validate())

	req = profile.UpdateRequest{DisplayName: "  Ana  ", Phone: " +52 (55) 1234-5678 "}
	req.Normalize()
	assert.NoError(t, req.Validate())
	assert.Equal(t, "Ana", req.DisplayName)
}
