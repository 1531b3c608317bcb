package license

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding-gateway/internal/steps"
)

var (
	pngHeader  = []byte("\x89PNG\x0D\x0A\x1A\x0A")
	jpegHeader = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF\x00")
)

func pngOfSize(n int) []byte {
	data := make([]byte, n)
	copy(data, pngHeader)
	return data
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		want    string
		wantErr bool
	}{
		{"png", Document{ContentType: "image/png", Data: pngOfSize(1024)}, "image/png", false},
		{"jpeg without declared type", Document{Data: append(append([]byte{}, jpegHeader...), bytes.Repeat([]byte{1}, 64)...)}, "image/jpeg", false},
		{"exactly at the limit", Document{ContentType: "image/png", Data: pngOfSize(MaxDocumentBytes)}, "image/png", false},
		{"15MB", Document{ContentType: "image/png", Data: pngOfSize(15 << 20)}, "", true},
		{"empty", Document{ContentType: "image/png"}, "", true},
		{"pdf", Document{ContentType: "application/pdf", Data: []byte("%PDF-1.7\n...")}, "", true},
		{"declared type mismatch", Document{ContentType: "image/jpeg", Data: pngOfSize(64)}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.doc)
			if tt.wantErr {
				require.Error(t, err)
				var stepErr *steps.Error
				require.ErrorAs(t, err, &stepErr)
				assert.Equal(t, steps.KindValidation, stepErr.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("license-a"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Digest([]byte("license-a")))
	assert.NotEqual(t, a, Digest([]byte("license-b")))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusProcessingAI))
	assert.False(t, StatusPending.CanTransitionTo(StatusVerified))
	assert.True(t, StatusProcessingAI.CanTransitionTo(StatusInReview))
	assert.True(t, StatusInReview.CanTransitionTo(StatusRejected))
	assert.False(t, StatusInReview.CanTransitionTo(StatusPending))
	assert.True(t, StatusVerified.CanTransitionTo(StatusRejected))
	assert.False(t, StatusVerified.CanTransitionTo(StatusInReview))
	assert.False(t, StatusRejected.CanTransitionTo(StatusVerified))
}
