package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// RefreshPruneInterval is how often expired refresh tokens are deleted.
	RefreshPruneInterval time.Duration

	// Security policy:
	// If true, BURROW_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("BURROW_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("BURROW_LOG_LEVEL", "info"),
		LogFormat: EnvString("BURROW_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("BURROW_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("BURROW_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("BURROW_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("BURROW_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("BURROW_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("BURROW_DATABASE_URL", ""),
		DBSchema:    EnvString("BURROW_DB_SCHEMA", "burrow"),
		DBMaxConns:  EnvInt32("BURROW_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("BURROW_DB_MIN_CONNS", 0),

		CORSAllowedOrigins:   EnvStringSlice("BURROW_CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		CORSAllowCredentials: EnvBool("BURROW_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("BURROW_CORS_MAX_AGE_SECONDS", 600),

		RefreshPruneInterval: EnvDuration("BURROW_REFRESH_PRUNE_INTERVAL", time.Hour),

		RequireTokenHMAC: EnvBool("BURROW_REQUIRE_TOKEN_HMAC", false),
	}
}
