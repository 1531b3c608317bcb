package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"onboarding-gateway/internal/steps"
)

func TestCategoryForStatus(t *testing.T) {
	tests := []struct {
		status   int
		category ErrorCategory
		isErr    bool
	}{
		{http.StatusOK, "", false},
		{http.StatusCreated, "", false},
		{http.StatusUnauthorized, ErrorAuthentication, true},
		{http.StatusNotFound, ErrorNotFound, true},
		{http.StatusTooManyRequests, ErrorRateLimited, true},
		{http.StatusGatewayTimeout, ErrorTimeout, true},
		{http.StatusUnprocessableEntity, ErrorRejectedInput, true},
		{http.StatusBadGateway, ErrorProviderOutage, true},
		{http.StatusTeapot, ErrorContractMismatch, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			category, isErr := CategoryForStatus(tt.status)
			assert.Equal(t, tt.isErr, isErr)
			assert.Equal(t, tt.category, category)
		})
	}
}

func TestStepError_Classification(t *testing.T) {
	t.Run("outage is transient", func(t *testing.T) {
		err := NewProviderError(ErrorProviderOutage, "kyc", "502", nil)
		assert.True(t, IsRetryable(err))
		assert.Equal(t, steps.KindTransient, StepError(err).Kind)
	})

	t.Run("deadline is transient", func(t *testing.T) {
		err := FromTransport("kyc", fmt.Errorf("do: %w", context.DeadlineExceeded))
		assert.Equal(t, ErrorTimeout, err.Category)
		assert.Equal(t, steps.KindTransient, StepError(err).Kind)
	})

	t.Run("bad data is configuration", func(t *testing.T) {
		err := NewProviderError(ErrorBadData, "kyc", "missing url", nil)
		assert.False(t, IsRetryable(err))
		assert.Equal(t, steps.KindConfiguration, StepError(err).Kind)
	})

	t.Run("step errors pass through", func(t *testing.T) {
		se := steps.NewError(steps.KindValidation, "too large")
		assert.Same(t, se, StepError(fmt.Errorf("upload: %w", se)))
	})

	t.Run("unknown errors are internal", func(t *testing.T) {
		assert.Equal(t, ErrorInternal, GetCategory(errors.New("boom")))
		assert.Nil(t, StepError(nil))
	})
}

type fakeProvider struct {
	id  string
	err error
}

func (f fakeProvider) ID() string                   { return f.id }
func (f fakeProvider) Kind() Kind                   { return KindIdentity }
func (f fakeProvider) Health(context.Context) error { return f.err }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(fakeProvider{id: "kyc"}))
	assert.NoError(t, r.Register(fakeProvider{id: "review", err: errors.New("down")}))
	assert.Error(t, r.Register(fakeProvider{id: "kyc"}))

	_, ok := r.Get("kyc")
	assert.True(t, ok)

	failures := r.Health(context.Background())
	assert.Len(t, failures, 1)
	assert.Contains(t, failures, "review")
}

func TestProviderErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("create session: %w", NewProviderError(ErrorProviderOutage, "kyc", "provider unreachable", cause))

	assert.Equal(t, "create session: provider kyc [provider_outage]: provider unreachable: dial tcp: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "provider kyc [not_found]: no session", NewProviderError(ErrorNotFound, "kyc", "no session", nil).Error())
}
