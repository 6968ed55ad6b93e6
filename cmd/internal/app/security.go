package app

import (
	"errors"

	"burrow/cmd/security/token"
)

// ValidateSecurityConfig enforces Burrow's security policy at startup.
// Fail-fast: falling back to weaker refresh-token hashing in production is not acceptable,
// so the policy is checked against the same module that performs the hashing.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Minimum 32 bytes for an HMAC-SHA256 secret, measured as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: BURROW_REQUIRE_TOKEN_HMAC=true but BURROW_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: BURROW_REQUIRE_TOKEN_HMAC=true but BURROW_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: BURROW_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
