package migrate

import "errors"

var (
	// ErrInvalidMaxAttempts indicates a retry call with no attempts.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrValidationFailed indicates the post-migration check found the
	// destination inconsistent with the legacy source.
	ErrValidationFailed = errors.New("migration validation failed")
)
