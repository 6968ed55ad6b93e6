package token

import (
	"os"
	"time"
)

// Config defines all runtime configuration for the access-token codec.
//
// It controls token lifetime, claim targeting (issuer/audience), clock skew
// tolerance, and the HS256 signing secret.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// Audience is the value set in the "aud" claim of access tokens.
	Audience string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// Secret is the HS256 signing key. Must be at least 32 bytes.
	Secret []byte
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		Issuer:         "burrow",
		Audience:       "burrow-clients",
		AccessTokenTTL: 15 * time.Minute,
		ClockSkew:      30 * time.Second,
	}
}

// LoadConfigFromEnv loads codec configuration from environment variables.
//
// Required:
//   - BURROW_JWT_SECRET (at least 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - BURROW_AUTH_ISSUER
//   - BURROW_AUTH_AUDIENCE
//   - BURROW_AUTH_ACCESS_TTL
//   - BURROW_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("BURROW_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("BURROW_AUTH_AUDIENCE"); v != "" {
		cfg.Audience = v
	}

	if v := os.Getenv("BURROW_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("BURROW_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	secret := os.Getenv("BURROW_JWT_SECRET")
	if len(secret) < 32 {
		return Config{}, ErrConfig
	}
	cfg.Secret = []byte(secret)

	return cfg, nil
}
