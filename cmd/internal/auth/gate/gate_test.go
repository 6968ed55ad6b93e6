package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"burrow/cmd/identity"
	"burrow/cmd/internal/auth/token"
)

type stubStore struct {
	users map[string]identity.User
}

func (s *stubStore) GetUserByID(ctx context.Context, userID string) (identity.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "stub.GetUserByID", Resource: "user"}
	}
	return u, nil
}

func newTestCodec(t *testing.T) token.Codec {
	t.Helper()
	cfg := token.DefaultConfig()
	cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	c, err := token.NewHS256Codec(cfg)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func issueToken(t *testing.T, c token.Codec, userID, name, group string) string {
	t.Helper()
	signed, _, err := c.Issue(userID, name, group, time.Now().UTC())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return signed
}

// echoIdentity writes 200 plus whether an identity was attached.
func echoIdentity(t *testing.T, got *Identity, found *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		*got, *found = id, ok
		w.WriteHeader(http.StatusOK)
	})
}

func TestGate_PublicTier_IgnoresCredentials(t *testing.T) {
	t.Parallel()

	g := New(newTestCodec(t), nil)

	var id Identity
	var found bool
	h := g.Require(TierPublic)(echoIdentity(t, &id, &found))

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer complete-garbage")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if found {
		t.Fatalf("public tier must not attach an identity")
	}
}

func TestGate_RequiredTier_CookieThenBearer(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	g := New(codec, nil)

	var id Identity
	var found bool
	h := g.Require(TierRequired)(echoIdentity(t, &id, &found))

	// Bearer works.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, codec, "user-1", "Mole", "common"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !found || id.UserID != "user-1" {
		t.Fatalf("bearer: code=%d found=%v id=%+v", rec.Code, found, id)
	}

	// Cookie wins over a bogus header.
	found = false
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultAccessCookieName, Value: issueToken(t, codec, "user-2", "Vole", "friend")})
	req.Header.Set("Authorization", "Bearer complete-garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || id.UserID != "user-2" || id.UserGroup != "friend" {
		t.Fatalf("cookie: code=%d id=%+v", rec.Code, id)
	}
}

func TestGate_RequiredTier_RejectsMissingAndInvalid(t *testing.T) {
	t.Parallel()

	g := New(newTestCodec(t), nil)

	var id Identity
	var found bool
	h := g.Require(TierRequired)(echoIdentity(t, &id, &found))

	// No credentials.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing: expected 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("missing: content type %q", ct)
	}

	// Garbage token.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid: expected 401, got %d", rec.Code)
	}
}

func TestGate_OptionalTier_DegradesToAnonymous(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	g := New(codec, nil)

	var id Identity
	var found bool
	h := g.Require(TierOptional)(echoIdentity(t, &id, &found))

	// Anonymous passes.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/posts", nil))
	if rec.Code != http.StatusOK || found {
		t.Fatalf("anonymous: code=%d found=%v", rec.Code, found)
	}

	// Bad token degrades, never 401s.
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer junk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || found {
		t.Fatalf("bad token: code=%d found=%v", rec.Code, found)
	}

	// Good token attaches identity.
	req = httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, codec, "user-3", "", "common"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !found || id.UserID != "user-3" {
		t.Fatalf("good token: code=%d found=%v id=%+v", rec.Code, found, id)
	}
}

func TestGate_RequireGroups_ReReadsStore(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t)
	store := &stubStore{users: map[string]identity.User{
		"user-admin":    {ID: "user-admin", GroupName: "admin"},
		"user-common":   {ID: "user-common", GroupName: "common"},
		"user-demoted":  {ID: "user-demoted", GroupName: "common"},
		"user-promoted": {ID: "user-promoted", GroupName: "admin"},
	}}
	g := New(codec, store)

	var id Identity
	var found bool
	h := g.Require(TierRequired)(g.RequireGroups("admin")(echoIdentity(t, &id, &found)))

	do := func(tok string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(issueToken(t, codec, "user-admin", "", "admin")); code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", code)
	}
	if code := do(issueToken(t, codec, "user-common", "", "common")); code != http.StatusForbidden {
		t.Fatalf("common: expected 403, got %d", code)
	}

	// A stale admin claim on a demoted user must not pass: the store wins.
	if code := do(issueToken(t, codec, "user-demoted", "", "admin")); code != http.StatusForbidden {
		t.Fatalf("demoted: expected 403, got %d", code)
	}

	// Conversely a promotion takes effect before the token is reissued.
	if code := do(issueToken(t, codec, "user-promoted", "", "common")); code != http.StatusOK {
		t.Fatalf("promoted: expected 200, got %d", code)
	}
	if id.UserGroup != "admin" {
		t.Fatalf("expected authoritative group admin, got %q", id.UserGroup)
	}

	// A deleted user's otherwise valid token is rejected outright.
	if code := do(issueToken(t, codec, "user-gone", "", "admin")); code != http.StatusUnauthorized {
		t.Fatalf("deleted: expected 401, got %d", code)
	}
}

func TestGate_RequireGroups_WithoutIdentity(t *testing.T) {
	t.Parallel()

	g := New(newTestCodec(t), &stubStore{users: map[string]identity.User{}})

	var id Identity
	var found bool
	// Group gate without a preceding required gate: no identity in context.
	h := g.RequireGroups("admin")(echoIdentity(t, &id, &found))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGate_MemberOf_ReadsStore(t *testing.T) {
	t.Parallel()

	g := New(newTestCodec(t), &stubStore{users: map[string]identity.User{
		"user-admin":  {ID: "user-admin", GroupName: "admin"},
		"user-common": {ID: "user-common", GroupName: "common"},
	}})

	ctx := context.Background()

	if ok, err := g.MemberOf(ctx, "user-admin", "admin"); err != nil || !ok {
		t.Fatalf("admin membership: ok=%v err=%v", ok, err)
	}
	if ok, err := g.MemberOf(ctx, "user-common", "admin"); err != nil || ok {
		t.Fatalf("common membership: ok=%v err=%v", ok, err)
	}
	// An unknown user is simply not a member; no error leaks.
	if ok, err := g.MemberOf(ctx, "user-gone", "admin"); err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
}
