package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-gateway/internal/license"
	id "onboarding-gateway/pkg/domain"
	"onboarding-gateway/pkg/platform/sentinel"
	"onboarding-gateway/pkg/requestcontext"
)

func newSubmission(providerID id.ProviderID, digest string, createdAt time.Time) *license.Submission {
	subID := id.NewSubmissionID()
	return &license.Submission{
		ID:          subID,
		ProviderID:  providerID,
		DocumentRef: "licenses/" + providerID.String() + "/" + subID.String() + ".png",
		ContentType: "image/png",
		Digest:      digest,
		Status:      license.StatusPending,
		CreatedAt:   createdAt,
	}
}

func TestInMemory_CreateSupersedesCurrent(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	st := NewInMemory()
	providerID := id.ProviderID(uuid.New())

	first := newSubmission(providerID, "d1", now.Add(-time.Hour))
	second := newSubmission(providerID, "d2", now)
	require.NoError(t, st.Create(ctx, first))
	require.NoError(t, st.Create(ctx, second))

	current, err := st.Current(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	history, err := st.History(ctx, providerID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	require.NotNil(t, history[1].SupersededAt)
	assert.True(t, now.Equal(*history[1].SupersededAt))
}

func TestInMemory_UpdateStatusAndLookup(t *testing.T) {
	ctx := context.Background()
	st := NewInMemory()
	providerID := id.ProviderID(uuid.New())
	sub := newSubmission(providerID, "digest", time.Now())
	require.NoError(t, st.Create(ctx, sub))

	reviewed := time.Now()
	sub.Status = license.StatusRejected
	sub.RejectionReason = "foto borrosa"
	sub.ReviewedAt = &reviewed
	require.NoError(t, st.UpdateStatus(ctx, sub))

	found, err := st.FindByDocumentRef(ctx, sub.DocumentRef)
	require.NoError(t, err)
	assert.Equal(t, license.StatusRejected, found.Status)
	assert.Equal(t, "foto borrosa", found.RejectionReason)

	dup, err := st.HasDigest(ctx, providerID, "digest", []license.Status{license.StatusRejected})
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = st.HasDigest(ctx, providerID, "digest", []license.Status{license.StatusVerified})
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestInMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	st := NewInMemory()

	_, err := st.Current(ctx, id.ProviderID(uuid.New()))
	assert.ErrorIs(t, err, license.ErrSubmissionNotFound)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = st.FindByDocumentRef(ctx, "licenses/missing.png")
	assert.ErrorIs(t, err, license.ErrSubmissionNotFound)

	err = st.UpdateStatus(ctx, &license.Submission{ID: id.NewSubmissionID()})
	assert.ErrorIs(t, err, license.ErrSubmissionNotFound)
}
