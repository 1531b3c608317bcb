package providers

import (
	"context"
	"errors"
	"net"
	"net/http"

	"onboarding-gateway/internal/steps"
)

// ErrorCategory is the normalised failure taxonomy for upstream calls.
type ErrorCategory string

const (
	ErrorTimeout          ErrorCategory = "timeout"
	ErrorBadData          ErrorCategory = "bad_data"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorProviderOutage   ErrorCategory = "provider_outage"
	ErrorContractMismatch ErrorCategory = "contract_mismatch"
	ErrorNotFound         ErrorCategory = "not_found"
	ErrorRateLimited      ErrorCategory = "rate_limited"
	ErrorRejectedInput    ErrorCategory = "rejected_input"
	ErrorInternal         ErrorCategory = "internal"
)

// Retryable is true for failures that may clear on their own: timeouts,
// outages and upstream throttling.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited:
		return true
	}
	return false
}

// ProviderError is an upstream failure tagged with its category and the
// provider that produced it.
type ProviderError struct {
	Category ErrorCategory
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := "provider " + e.Provider + " [" + string(e.Category) + "]: " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(category ErrorCategory, provider, message string, cause error) *ProviderError {
	return &ProviderError{Category: category, Provider: provider, Message: message, Err: cause}
}

func IsRetryable(err error) bool {
	return GetCategory(err).Retryable()
}

// GetCategory returns ErrorInternal for errors that did not come from a
// provider call.
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// CategoryForStatus maps an upstream HTTP status to a category. ok is false
// for 2xx.
func CategoryForStatus(status int) (ErrorCategory, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuthentication, true
	case status == http.StatusNotFound:
		return ErrorNotFound, true
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited, true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTimeout, true
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusRequestEntityTooLarge:
		return ErrorRejectedInput, true
	case status >= 500:
		return ErrorProviderOutage, true
	default:
		return ErrorContractMismatch, true
	}
}

// FromTransport classifies a failed round trip (no response at all).
func FromTransport(providerID string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, providerID, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(ErrorTimeout, providerID, "request timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, providerID, "provider unreachable", err)
}

// StepError converts an upstream failure into the step error taxonomy.
// Retryable failures are transient; everything else is a configuration or
// contract problem that retrying will not fix.
func StepError(err error) *steps.Error {
	if err == nil {
		return nil
	}
	var se *steps.Error
	if errors.As(err, &se) {
		return se
	}
	switch category := GetCategory(err); {
	case category.Retryable():
		return steps.NewError(steps.KindTransient, "el servicio de verificación no responde, inténtalo de nuevo")
	case category == ErrorRejectedInput:
		return steps.NewError(steps.KindValidation, "el servicio de verificación rechazó la solicitud")
	default:
		return steps.NewError(steps.KindConfiguration, "respuesta inesperada del servicio de verificación")
	}
}

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrCircuitOpen      = errors.New("circuit open")
)
