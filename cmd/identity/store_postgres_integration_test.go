package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require BURROW_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateUser_ConflictUsername_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pw := "very-strong-password-1"
	_, err := s.CreateUser(ctx, CreateUserInput{
		Email:    "navid@example.com",
		Username: "Navid",
		Password: &pw,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	// Same username (case-insensitive) should conflict.
	pw2 := "very-strong-password-2"
	_, err = s.CreateUser(ctx, CreateUserInput{
		Email:    "other@example.com",
		Username: "nAvId",
		Password: &pw2,
		Now:      time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pw := "very-strong-password-11"
	_, err := s.CreateUser(ctx, CreateUserInput{
		Email:    "User@Example.com",
		Username: "email-user-a",
		Password: &pw,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	// Same email (case-insensitive) should conflict.
	pw2 := "very-strong-password-12"
	_, err = s.CreateUser(ctx, CreateUserInput{
		Email:    "user@example.COM",
		Username: "email-user-b",
		Password: &pw2,
		Now:      time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_CreateUser_UnknownGroup_ReturnsNotFound(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pw := "very-strong-password-13"
	_, err := s.CreateUser(ctx, CreateUserInput{
		Email:     "nobody@example.com",
		Username:  "nobody",
		Password:  &pw,
		GroupName: "superuser",
		Now:       time.Now().UTC(),
	})
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound for unknown group, got: %v", err)
	}
}

func TestPostgresStore_GetUserByLogin_EmailOrUsername(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	u := "login-user-" + strings.ToLower(mustNewULIDLike(t))
	pw := "very-strong-password-3"
	res, err := s.CreateUser(ctx, CreateUserInput{
		Email:    u + "@example.com",
		Username: u,
		Password: &pw,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	byEmail, err := s.GetUserByLogin(ctx, strings.ToUpper(u)+"@EXAMPLE.com")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	if byEmail.ID != res.User.ID {
		t.Fatalf("expected user %q, got %q", res.User.ID, byEmail.ID)
	}
	if byEmail.GroupName != DefaultGroupName {
		t.Fatalf("expected default group %q, got %q", DefaultGroupName, byEmail.GroupName)
	}

	byName, err := s.GetUserByLogin(ctx, strings.ToUpper(u))
	if err != nil {
		t.Fatalf("by username: %v", err)
	}
	if byName.ID != res.User.ID {
		t.Fatalf("expected user %q, got %q", res.User.ID, byName.ID)
	}

	_, err = s.GetUserByLogin(ctx, "no-such-login")
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestPostgresStore_RedeemRefreshToken_SingleUse(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	userID := mustCreateTestUser(t, ctx, s, "redeem-user")

	out, err := s.IssueRefreshToken(ctx, IssueRefreshTokenInput{
		UserID: userID,
		TTL:    24 * time.Hour,
		Now:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if out.PlainToken == "" {
		t.Fatalf("expected plain token")
	}
	if len(out.Token.TokenHash) != 64 {
		t.Fatalf("expected token hash len=64 got=%d", len(out.Token.TokenHash))
	}

	got, err := s.RedeemRefreshToken(ctx, out.PlainToken, time.Now().UTC())
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got != userID {
		t.Fatalf("expected user %q, got %q", userID, got)
	}

	// Second redemption of the same token must lose.
	_, err = s.RedeemRefreshToken(ctx, out.PlainToken, time.Now().UTC())
	if err == nil || !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive on reuse, got: %v", err)
	}
}

func TestPostgresStore_RedeemRefreshToken_UnknownToken_ReturnsNotActive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := s.RedeemRefreshToken(ctx, "definitely-not-a-real-token", time.Now().UTC())
	if err == nil || !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got: %v", err)
	}
}

func TestPostgresStore_RedeemRefreshToken_Expired_ReturnsNotActive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	userID := mustCreateTestUser(t, ctx, s, "expired-user")

	out, err := s.IssueRefreshToken(ctx, IssueRefreshTokenInput{
		UserID: userID,
		TTL:    1 * time.Hour,
		Now:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Force expiry in DB for this token only.
	tokens := pgIdent(schema, "refresh_tokens")
	mustExec(t, pool,
		`UPDATE `+tokens+`
		    SET issued_at = now() - interval '2 hours',
		        expires_at = now() - interval '1 second'
		  WHERE id = $1`,
		out.Token.ID,
	)

	_, err = s.RedeemRefreshToken(ctx, out.PlainToken, time.Now().UTC())
	if err == nil || !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after expiry, got: %v", err)
	}

	// The expired row must be gone: a retry stays ErrNotActive.
	_, err = s.RedeemRefreshToken(ctx, out.PlainToken, time.Now().UTC())
	if err == nil || !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive on retry, got: %v", err)
	}
}

func TestPostgresStore_DeleteUserRefreshTokens_Idempotent(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userID := mustCreateTestUser(t, ctx, s, "signout-user")

	t1, err := s.IssueRefreshToken(ctx, IssueRefreshTokenInput{UserID: userID, TTL: 24 * time.Hour, Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("issue 1: %v", err)
	}
	t2, err := s.IssueRefreshToken(ctx, IssueRefreshTokenInput{UserID: userID, TTL: 24 * time.Hour, Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("issue 2: %v", err)
	}

	if err := s.DeleteUserRefreshTokens(ctx, userID); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	// Redemptions must fail for both.
	_, err = s.RedeemRefreshToken(ctx, t1.PlainToken, time.Now().UTC())
	if err == nil || !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive for token 1, got: %v", err)
	}
	_, err = s.RedeemRefreshToken(ctx, t2.PlainToken, time.Now().UTC())
	if err == nil || !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive for token 2, got: %v", err)
	}

	// Idempotent second call must not error.
	if err := s.DeleteUserRefreshTokens(ctx, userID); err != nil {
		t.Fatalf("delete all (second call): %v", err)
	}
}

func TestPostgresStore_GetGroupByName_SeededAndUnknown(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, name := range []string{DefaultGroupName, "admin"} {
		g, err := s.GetGroupByName(ctx, name)
		if err != nil {
			t.Fatalf("get group %q: %v", name, err)
		}
		if g.Name != name || g.ID == "" {
			t.Fatalf("group %q: got id=%q name=%q", name, g.ID, g.Name)
		}
	}

	_, err := s.GetGroupByName(ctx, "no-such-group")
	if !IsNotFound(err) {
		t.Fatalf("expected not found for unknown group, got: %v", err)
	}
}

func TestPostgresStore_PruneExpiredRefreshTokens_DeletesOnlyExpired(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userID := mustCreateTestUser(t, ctx, s, "prune-user")

	stale, err := s.IssueRefreshToken(ctx, IssueRefreshTokenInput{UserID: userID, TTL: 1 * time.Hour, Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("issue stale: %v", err)
	}
	live, err := s.IssueRefreshToken(ctx, IssueRefreshTokenInput{UserID: userID, TTL: 24 * time.Hour, Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("issue live: %v", err)
	}

	// Force expiry in DB for the stale token only.
	tokens := pgIdent(schema, "refresh_tokens")
	mustExec(t, pool,
		`UPDATE `+tokens+`
		    SET issued_at = now() - interval '2 hours',
		        expires_at = now() - interval '1 second'
		  WHERE id = $1`,
		stale.Token.ID,
	)

	n, err := s.PruneExpiredRefreshTokens(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}

	// The stale token is gone; the live token still redeems.
	_, err = s.RedeemRefreshToken(ctx, stale.PlainToken, time.Now().UTC())
	if err == nil || !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive for pruned token, got: %v", err)
	}
	got, err := s.RedeemRefreshToken(ctx, live.PlainToken, time.Now().UTC())
	if err != nil {
		t.Fatalf("redeem live: %v", err)
	}
	if got != userID {
		t.Fatalf("expected user %q, got %q", userID, got)
	}

	// Nothing left to prune.
	n, err = s.PruneExpiredRefreshTokens(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("prune (second call): %v", err)
	}
	if n != 0 {
		t.Fatalf("pruned = %d, want 0", n)
	}
}

func TestPostgresStore_PendingChallenge_TakeIsOneShot(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	userID := mustCreateTestUser(t, ctx, s, "challenge-user")

	if err := s.SetPendingChallenge(ctx, userID, `{"challenge":"abc"}`); err != nil {
		t.Fatalf("set challenge: %v", err)
	}
	// Last writer wins.
	if err := s.SetPendingChallenge(ctx, userID, `{"challenge":"def"}`); err != nil {
		t.Fatalf("overwrite challenge: %v", err)
	}

	got, err := s.TakePendingChallenge(ctx, userID)
	if err != nil {
		t.Fatalf("take challenge: %v", err)
	}
	if got != `{"challenge":"def"}` {
		t.Fatalf("expected latest challenge, got %q", got)
	}

	// One-shot: the second take must miss.
	_, err = s.TakePendingChallenge(ctx, userID)
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound on second take, got: %v", err)
	}
}

func TestPostgresStore_AdvanceSignCount_RejectsStaleCounter(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	userID := mustCreateTestUser(t, ctx, s, "authn-user")

	a := Authenticator{
		CredentialID: "cred-" + strings.ToLower(mustNewULIDLike(t)),
		UserID:       userID,
		PublicKey:    []byte{0x01, 0x02, 0x03},
		SignCount:    5,
		DeviceType:   "single_device",
		Transports:   []string{"usb"},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateAuthenticator(ctx, a); err != nil {
		t.Fatalf("create authenticator: %v", err)
	}

	// Duplicate credential IDs must conflict.
	if err := s.CreateAuthenticator(ctx, a); err == nil || !IsConflict(err) {
		t.Fatalf("expected conflict on duplicate credential, got: %v", err)
	}

	if err := s.AdvanceSignCount(ctx, a.CredentialID, 6); err != nil {
		t.Fatalf("advance to 6: %v", err)
	}

	// Equal or lower counters must lose the guarded update.
	if err := s.AdvanceSignCount(ctx, a.CredentialID, 6); err == nil || !IsConflict(err) {
		t.Fatalf("expected conflict on equal counter, got: %v", err)
	}
	if err := s.AdvanceSignCount(ctx, a.CredentialID, 3); err == nil || !IsConflict(err) {
		t.Fatalf("expected conflict on lower counter, got: %v", err)
	}

	got, err := s.GetAuthenticator(ctx, a.CredentialID)
	if err != nil {
		t.Fatalf("get authenticator: %v", err)
	}
	if got.SignCount != 6 {
		t.Fatalf("expected sign count 6, got %d", got.SignCount)
	}

	list, err := s.AuthenticatorsByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list authenticators: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 authenticator, got %d", len(list))
	}
}

// ---- helpers ----

func mustNewIdentityStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustCreateTestUser(t *testing.T, ctx context.Context, s *PostgresStore, prefix string) string {
	t.Helper()

	u := prefix + "-" + strings.ToLower(mustNewULIDLike(t))
	pw := "very-strong-password-it"
	res, err := s.CreateUser(ctx, CreateUserInput{
		Email:    u + "@example.com",
		Username: u,
		Password: &pw,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return res.User.ID
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("BURROW_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: BURROW_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse BURROW_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (BURROW_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "burrow_it_" + strings.ToLower(mustNewULIDLike(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyIdentitySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	groups := pgIdent(schema, "user_groups")
	users := pgIdent(schema, "users")
	tokens := pgIdent(schema, "refresh_tokens")
	auths := pgIdent(schema, "authenticators")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NULL,
  CONSTRAINT uq_user_groups_name UNIQUE (name)
);

INSERT INTO %s (id, name) VALUES
  ('01J00000000000000000000001', 'admin'),
  ('01J00000000000000000000002', 'reviewer'),
  ('01J00000000000000000000003', 'friend'),
  ('01J00000000000000000000004', 'common');

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  username TEXT NOT NULL,
  username_norm TEXT NOT NULL,
  password_hash TEXT NULL,
  avatar TEXT NULL,
  group_id TEXT NOT NULL REFERENCES %s(id),
  pending_challenge TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm),
  CONSTRAINT uq_users_username_norm UNIQUE (username_norm)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  token_hash TEXT NOT NULL,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  issued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL,
  device_info TEXT NULL,

  CONSTRAINT chk_refresh_tokens_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_refresh_tokens_hash_len CHECK (char_length(token_hash) = 64),
  CONSTRAINT uq_refresh_tokens_token_hash UNIQUE (token_hash)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  public_key BYTEA NOT NULL,
  sign_count BIGINT NOT NULL DEFAULT 0,
  device_type TEXT NOT NULL,
  backed_up BOOLEAN NOT NULL DEFAULT FALSE,
  transports TEXT[] NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON %s (user_id);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON %s (expires_at);
CREATE INDEX IF NOT EXISTS idx_authenticators_user_id ON %s (user_id);
`, groups, groups, users, groups, tokens, users, auths, users, tokens, tokens, auths)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustExec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
}

func mustNewULIDLike(t *testing.T) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
