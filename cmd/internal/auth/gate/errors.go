package gate

import "errors"

var (
	// ErrUnauthenticated is returned when a required-tier route has no valid
	// access token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when an authenticated user's group does not
	// satisfy the route's group requirement.
	ErrForbidden = errors.New("forbidden")
)
