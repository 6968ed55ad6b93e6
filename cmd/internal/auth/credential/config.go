package credential

import (
	"os"
	"strconv"
	"time"
)

// Config defines runtime configuration for the credential authority.
type Config struct {
	// RefreshTokenTTL defines the lifetime of opaque refresh tokens.
	RefreshTokenTTL time.Duration

	// RefreshTokenBytes defines the number of random bytes used
	// to generate opaque refresh tokens.
	RefreshTokenBytes int
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
func DefaultConfig() Config {
	return Config{
		RefreshTokenTTL:   7 * 24 * time.Hour,
		RefreshTokenBytes: 32,
	}
}

// LoadConfigFromEnv loads credential configuration from environment variables.
//
// Optional:
//   - BURROW_AUTH_REFRESH_TTL (Go duration string)
//   - BURROW_AUTH_REFRESH_TOKEN_BYTES (32..64)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("BURROW_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("BURROW_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	return cfg, nil
}
