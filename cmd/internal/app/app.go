// Package app wires the Burrow server runtime: config, logging, database pool,
// HTTP routes, and metrics.
//
// It is intentionally small and deterministic to keep startup failures loud and early.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"burrow/cmd/identity"
	authapi "burrow/cmd/internal/auth/api"
	"burrow/cmd/internal/auth/credential"
	"burrow/cmd/internal/auth/gate"
	"burrow/cmd/internal/auth/passkey"
	"burrow/cmd/internal/auth/token"
	"burrow/cmd/internal/content"
)

// App is the Burrow server runtime. It owns the database pool and the HTTP wiring.
type App struct {
	cfg Config
	log Logger

	pool     *pgxpool.Pool
	metrics  *Metrics
	identity *identity.PostgresStore

	auth    *authapi.Handler
	content *content.Handler
}

// New constructs a fully wired App instance from config and logger.
// The database is mandatory: every store in this service is Postgres-backed.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: BURROW_DATABASE_URL is required")
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("db.connected", "schema", cfg.DBSchema)

	identityStore, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}
	// Every group gate resolves against these rows; a missing seed group
	// would surface much later as spurious 403s, so fail startup instead.
	for _, name := range []string{identity.DefaultGroupName, "admin"} {
		if _, err := identityStore.GetGroupByName(ctx, name); err != nil {
			pool.Close()
			return nil, fmt.Errorf("app: seed group %q missing: %w", name, err)
		}
	}

	contentStore, err := content.NewPostgresStore(pool, content.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	tokenCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		pool.Close()
		return nil, err
	}
	codec, err := token.NewHS256Codec(tokenCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	credCfg, err := credential.LoadConfigFromEnv()
	if err != nil {
		pool.Close()
		return nil, err
	}
	credentials, err := credential.NewService(credCfg, identityStore, codec)
	if err != nil {
		pool.Close()
		return nil, err
	}

	passkeyCfg, err := passkey.LoadConfigFromEnv()
	if err != nil {
		pool.Close()
		return nil, err
	}
	passkeys, err := passkey.NewService(passkeyCfg, identityStore)
	if err != nil {
		pool.Close()
		return nil, err
	}

	g := gate.New(codec, identityStore)

	authHandler, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), credentials, passkeys, g)
	if err != nil {
		pool.Close()
		return nil, err
	}
	contentHandler, err := content.NewHandler(log, contentStore, g)
	if err != nil {
		pool.Close()
		return nil, err
	}

	metrics, err := NewMetrics()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		metrics:  metrics,
		identity: identityStore,
		auth:     authHandler,
		content:  contentHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.pool, a.metrics, a.auth, a.content)

	var handler http.Handler = mux
	handler = a.metrics.WithMetrics(handler)
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.pruneRefreshTokens(janitorCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.pool.Close()
	a.log.Info("server.stopped")
	return nil
}

// pruneRefreshTokens deletes expired refresh tokens on a fixed interval until
// the context is cancelled.
func (a *App) pruneRefreshTokens(ctx context.Context) {
	interval := nonZeroDuration(a.cfg.RefreshPruneInterval, time.Hour)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.identity.PruneExpiredRefreshTokens(ctx, time.Now().UTC())
			if err != nil {
				a.log.Error("auth.refresh.prune.fail", "err", err)
				continue
			}
			if n > 0 {
				a.log.Info("auth.refresh.prune", "deleted", n)
			}
		}
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
