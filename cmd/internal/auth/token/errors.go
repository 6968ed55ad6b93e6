package token

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification or
	// validation. All failure modes (bad signature, expiry, wrong audience,
	// malformed input) collapse into this one error to avoid oracle behavior.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
