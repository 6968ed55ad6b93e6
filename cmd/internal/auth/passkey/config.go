package passkey

import (
	"os"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Config defines the relying-party parameters for WebAuthn ceremonies.
type Config struct {
	// RPID is the relying party identifier, typically the bare domain.
	RPID string

	// RPDisplayName is the human-readable relying party name.
	RPDisplayName string

	// RPOrigins are the allowed web origins for ceremonies.
	RPOrigins []string

	// Timeout bounds each ceremony on the client.
	Timeout time.Duration
}

// DefaultConfig returns a development configuration for localhost.
//
// Production environments must override RPID and RPOrigins via environment
// variables; a mismatched origin fails every ceremony.
func DefaultConfig() Config {
	return Config{
		RPID:          "localhost",
		RPDisplayName: "Burrow",
		RPOrigins:     []string{"http://localhost:5173"},
		Timeout:       60 * time.Second,
	}
}

// LoadConfigFromEnv loads relying-party configuration from environment variables.
//
// Optional:
//   - BURROW_WEBAUTHN_RP_ID
//   - BURROW_WEBAUTHN_RP_NAME
//   - BURROW_WEBAUTHN_ORIGINS (comma separated)
//   - BURROW_WEBAUTHN_TIMEOUT (Go duration string)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("BURROW_WEBAUTHN_RP_ID"); v != "" {
		cfg.RPID = v
	}

	if v := os.Getenv("BURROW_WEBAUTHN_RP_NAME"); v != "" {
		cfg.RPDisplayName = v
	}

	if v := os.Getenv("BURROW_WEBAUTHN_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) == 0 {
			return Config{}, ErrConfig
		}
		cfg.RPOrigins = origins
	}

	if v := os.Getenv("BURROW_WEBAUTHN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.Timeout = d
	}

	return cfg, nil
}

// toWebAuthnConfig converts Config to the go-webauthn library's configuration.
func (c Config) toWebAuthnConfig() (*webauthn.Config, error) {
	if c.RPID == "" || c.RPDisplayName == "" || len(c.RPOrigins) == 0 {
		return nil, ErrConfig
	}

	out := &webauthn.Config{
		RPID:          c.RPID,
		RPDisplayName: c.RPDisplayName,
		RPOrigins:     c.RPOrigins,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.VerificationPreferred,
		},
		AttestationPreference: protocol.PreferNoAttestation,
	}

	if c.Timeout > 0 {
		out.Timeouts = webauthn.TimeoutsConfig{
			Login: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
			Registration: webauthn.TimeoutConfig{
				Enforce:    true,
				Timeout:    c.Timeout,
				TimeoutUVD: c.Timeout,
			},
		}
	}

	return out, nil
}
