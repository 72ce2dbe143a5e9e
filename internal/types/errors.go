package types

import "errors"

// Sentinel errors shared across the memory subsystems. Callers branch with
// errors.Is; wrap with fmt.Errorf("context: %w", ...) to add detail.
var (
	// ErrInvalidInput covers nil/missing required fields and out-of-range
	// numeric values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState is returned when an operation is attempted before
	// init or in the wrong consolidation mode.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound is a normal branch for convergence detection and for
	// metadata updates targeting an unknown record. It is not logged as
	// an error.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps I/O failures on the append log or the index.
	ErrStorage = errors.New("storage failure")

	// ErrPermissionDenied is an access-gate rejection.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotImplemented is reserved for the tier 2/3 store paths.
	ErrNotImplemented = errors.New("not implemented")
)
