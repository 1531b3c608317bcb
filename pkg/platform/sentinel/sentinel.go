// Package sentinel names infrastructure facts that stores report and services
// translate into domain errors. Store-specific errors wrap these so callers
// can match either one with errors.Is.
package sentinel

import "errors"

var (
	// ErrNotFound means the store has no matching record.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint rejected the write.
	ErrConflict = errors.New("conflict")
)
