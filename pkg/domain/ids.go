// Package domain holds typed identifiers shared across modules. Parsing happens
// once at the trust boundary; past that point IDs are never raw strings.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "onboarding-gateway/pkg/domain-errors"
)

// ProviderID identifies a service provider going through onboarding.
type ProviderID uuid.UUID

// SubmissionID identifies one license document submission.
type SubmissionID uuid.UUID

func (id ProviderID) String() string   { return uuid.UUID(id).String() }
func (id SubmissionID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id ProviderID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// IsNil reports whether the ID is the zero UUID.
func (id SubmissionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// MarshalText keeps the canonical string form in JSON and Redis payloads.
func (id ProviderID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText parses the canonical string form.
func (id *ProviderID) UnmarshalText(b []byte) error {
	parsed, err := ParseProviderID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText keeps the canonical string form in JSON payloads.
func (id SubmissionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText parses the canonical string form.
func (id *SubmissionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSubmissionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewSubmissionID returns a random submission ID.
func NewSubmissionID() SubmissionID { return SubmissionID(uuid.New()) }

// ParseProviderID parses and validates a provider ID.
func ParseProviderID(s string) (ProviderID, error) {
	u, err := parseUUID(s, "provider_id")
	if err != nil {
		return ProviderID{}, err
	}
	return ProviderID(u), nil
}

// ParseSubmissionID parses and validates a submission ID.
func ParseSubmissionID(s string) (SubmissionID, error) {
	u, err := parseUUID(s, "submission_id")
	if err != nil {
		return SubmissionID{}, err
	}
	return SubmissionID(u), nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	// uuid.Parse accepts braces and urn prefixes; only the canonical form is allowed here.
	if len(s) != 36 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}
