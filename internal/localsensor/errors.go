package localsensor

import "errors"

// Domain errors for the localsensor package.
var (
	// ErrValidation is returned when a remote update payload is rejected.
	// The current table is left unchanged.
	ErrValidation = errors.New("localsensor: validation failed")

	// ErrPersist is returned when the replacement table cannot be written to
	// disk. The in-memory table is left unchanged.
	ErrPersist = errors.New("localsensor: persist failed")
)
