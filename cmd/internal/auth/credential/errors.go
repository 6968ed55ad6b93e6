package credential

import "errors"

var (
	// ErrAlreadyRegistered is returned when sign-up collides with an existing
	// email or username (case-insensitive).
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrUnknownGroup is returned when sign-up names a group outside the
	// closed role set.
	ErrUnknownGroup = errors.New("unknown user group")

	// ErrInvalidCredentials is returned when sign-in fails. Unknown login and
	// wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is returned when refresh redemption fails for any
	// reason: unknown, expired, or already redeemed by a concurrent caller.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
