package passkey

import "errors"

var (
	// ErrNoPendingChallenge is returned when a finish call arrives with no
	// stored challenge (none issued, already consumed, or overwritten).
	ErrNoPendingChallenge = errors.New("no pending challenge")

	// ErrUnknownCredential is returned when an assertion names a credential
	// the user never registered, or login is begun for a user without any.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrCeremonyFailed is returned when authenticator response validation
	// fails: bad signature, origin/RP mismatch, clone warning, or a sign
	// counter that did not move strictly forward.
	ErrCeremonyFailed = errors.New("ceremony verification failed")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
