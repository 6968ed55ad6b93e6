package content

import "errors"

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed or out-of-bounds input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned on uniqueness violations (category names,
	// archive object keys).
	ErrConflict = errors.New("conflict")
)
