package credential

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"burrow/cmd/identity"
	"burrow/cmd/internal/auth/token"
)

// stubStore is an in-memory Store for unit tests.
type stubStore struct {
	users   map[string]identity.User // by ID
	byLogin map[string]identity.User // by normalized login
	tokens  map[string]tokenRow      // by plain refresh token

	createErr error
	nextPlain int
}

type tokenRow struct {
	userID    string
	expiresAt time.Time
}

func newStubStore() *stubStore {
	return &stubStore{
		users:   map[string]identity.User{},
		byLogin: map[string]identity.User{},
		tokens:  map[string]tokenRow{},
	}
}

func (s *stubStore) addUser(u identity.User) {
	s.users[u.ID] = u
	s.byLogin[identity.NormalizeEmail(u.Email)] = u
	s.byLogin[identity.NormalizeUsername(u.Username)] = u
}

func (s *stubStore) CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.CreateUserResult, error) {
	if s.createErr != nil {
		return identity.CreateUserResult{}, s.createErr
	}
	u := identity.User{
		ID:        "user-" + in.Username,
		Email:     in.Email,
		Username:  in.Username,
		GroupName: identity.DefaultGroupName,
		CreatedAt: in.Now,
	}
	if in.GroupName != "" {
		u.GroupName = in.GroupName
	}
	s.addUser(u)
	return identity.CreateUserResult{User: u}, nil
}

func (s *stubStore) GetUserByID(ctx context.Context, userID string) (identity.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "stub.GetUserByID", Resource: "user"}
	}
	return u, nil
}

func (s *stubStore) GetUserByLogin(ctx context.Context, login string) (identity.User, error) {
	u, ok := s.byLogin[identity.NormalizeEmail(login)]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "stub.GetUserByLogin", Resource: "user"}
	}
	return u, nil
}

func (s *stubStore) IssueRefreshToken(ctx context.Context, in identity.IssueRefreshTokenInput) (identity.IssueRefreshTokenResult, error) {
	s.nextPlain++
	plain := "refresh-" + strconv.Itoa(s.nextPlain)
	exp := in.Now.Add(in.TTL)
	s.tokens[plain] = tokenRow{userID: in.UserID, expiresAt: exp}
	return identity.IssueRefreshTokenResult{
		Token:      identity.RefreshToken{ID: plain, UserID: in.UserID, IssuedAt: in.Now, ExpiresAt: exp},
		PlainToken: plain,
	}, nil
}

func (s *stubStore) RedeemRefreshToken(ctx context.Context, plainToken string, now time.Time) (string, error) {
	row, ok := s.tokens[plainToken]
	// Single conditional delete: the row is gone whether or not it was live.
	delete(s.tokens, plainToken)
	if !ok || !row.expiresAt.After(now) {
		return "", identity.OpError{Op: "stub.RedeemRefreshToken", Kind: identity.ErrNotActive}
	}
	return row.userID, nil
}

func (s *stubStore) DeleteRefreshToken(ctx context.Context, plainToken string) error {
	delete(s.tokens, plainToken)
	return nil
}

func (s *stubStore) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	for k, v := range s.tokens {
		if v.userID == userID {
			delete(s.tokens, k)
		}
	}
	return nil
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()

	codecCfg := token.DefaultConfig()
	codecCfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	codec, err := token.NewHS256Codec(codecCfg)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	svc, err := NewService(DefaultConfig(), store, codec)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestService_SignUp_IssuesPair(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	now := time.Now().UTC()
	out, err := svc.SignUp(context.Background(), now, SignUpInput{
		Email:    "mole@example.com",
		Username: "mole",
		Password: "very-strong-password",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", out)
	}
	if !out.RefreshExp.After(now) {
		t.Fatalf("refresh exp not in the future")
	}
	if out.User.GroupName != identity.DefaultGroupName {
		t.Fatalf("expected default group, got %q", out.User.GroupName)
	}
}

func TestService_SignUp_MapsConflictAndUnknownGroup(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	now := time.Now().UTC()

	store.createErr = identity.ConflictError{Op: "stub", Field: "email"}
	_, err := svc.SignUp(context.Background(), now, SignUpInput{Email: "a@b.c", Username: "a", Password: "a-strong-password"})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got: %v", err)
	}

	store.createErr = identity.NotFoundError{Op: "stub", Resource: "user_group"}
	_, err = svc.SignUp(context.Background(), now, SignUpInput{Email: "a@b.c", Username: "a", Password: "a-strong-password", GroupName: "superuser"})
	if !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got: %v", err)
	}
}

func TestService_SignIn_SuccessAndFailures(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	hash, err := identity.HashPassword("correct-horse-battery", identity.DefaultArgon2idParams())
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store.addUser(identity.User{
		ID:           "user-vole",
		Email:        "vole@example.com",
		Username:     "vole",
		PasswordHash: &hash,
		GroupName:    "common",
	})
	// Passkey-only account: no password hash at all.
	store.addUser(identity.User{
		ID:        "user-shrew",
		Email:     "shrew@example.com",
		Username:  "shrew",
		GroupName: "common",
	})

	now := time.Now().UTC()

	out, err := svc.SignIn(context.Background(), now, "Vole@Example.com", "correct-horse-battery", nil)
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if out.User.ID != "user-vole" {
		t.Fatalf("expected user-vole, got %q", out.User.ID)
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Fatalf("expected both tokens")
	}

	cases := []struct {
		name     string
		login    string
		password string
	}{
		{"wrong password", "vole", "not-the-password"},
		{"unknown login", "nobody", "whatever-password"},
		{"passkey only", "shrew", "any-password-at-all"},
		{"empty password", "vole", ""},
	}
	for _, tc := range cases {
		if _, err := svc.SignIn(context.Background(), now, tc.login, tc.password, nil); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got: %v", tc.name, err)
		}
	}
}

func TestService_Refresh_SingleUse(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	store.addUser(identity.User{ID: "user-otter", Email: "otter@example.com", Username: "otter", GroupName: "friend"})

	now := time.Now().UTC()
	first, err := svc.IssueTokenPair(context.Background(), now, store.users["user-otter"], nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated, err := svc.Refresh(context.Background(), now.Add(time.Minute), first.RefreshToken, nil)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if rotated.User.ID != "user-otter" {
		t.Fatalf("expected user-otter, got %q", rotated.User.ID)
	}

	// The redeemed token is spent.
	_, err = svc.Refresh(context.Background(), now.Add(2*time.Minute), first.RefreshToken, nil)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on reuse, got: %v", err)
	}
}

func TestService_Refresh_ExpiredAndGarbage(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	store.addUser(identity.User{ID: "user-stoat", Email: "stoat@example.com", Username: "stoat", GroupName: "common"})

	now := time.Now().UTC()
	out, err := svc.IssueTokenPair(context.Background(), now, store.users["user-stoat"], nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Past the refresh TTL.
	_, err = svc.Refresh(context.Background(), now.Add(DefaultConfig().RefreshTokenTTL+time.Hour), out.RefreshToken, nil)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after expiry, got: %v", err)
	}

	for _, in := range []string{"", "   ", "unknown-token"} {
		if _, err := svc.Refresh(context.Background(), now, in, nil); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("input %q: expected ErrInvalidRefreshToken, got: %v", in, err)
		}
	}
}

func TestService_SignOut_Idempotent(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	store.addUser(identity.User{ID: "user-hare", Email: "hare@example.com", Username: "hare", GroupName: "common"})

	now := time.Now().UTC()
	out, err := svc.IssueTokenPair(context.Background(), now, store.users["user-hare"], nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := svc.SignOut(context.Background(), out.RefreshToken); err != nil {
		t.Fatalf("signout: %v", err)
	}
	// Signed-out token is unusable, signing out twice is fine.
	if _, err := svc.Refresh(context.Background(), now, out.RefreshToken, nil); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after signout, got: %v", err)
	}
	if err := svc.SignOut(context.Background(), out.RefreshToken); err != nil {
		t.Fatalf("second signout: %v", err)
	}
	if err := svc.SignOut(context.Background(), ""); err != nil {
		t.Fatalf("empty signout: %v", err)
	}
}

func TestService_SignOutAll_DropsEveryToken(t *testing.T) {
	store := newStubStore()
	svc := newTestService(t, store)

	store.addUser(identity.User{ID: "user-lynx", Email: "lynx@example.com", Username: "lynx", GroupName: "reviewer"})

	now := time.Now().UTC()
	t1, err := svc.IssueTokenPair(context.Background(), now, store.users["user-lynx"], nil)
	if err != nil {
		t.Fatalf("issue 1: %v", err)
	}
	t2, err := svc.IssueTokenPair(context.Background(), now, store.users["user-lynx"], nil)
	if err != nil {
		t.Fatalf("issue 2: %v", err)
	}

	if err := svc.SignOutAll(context.Background(), "user-lynx"); err != nil {
		t.Fatalf("signout all: %v", err)
	}

	for _, tok := range []string{t1.RefreshToken, t2.RefreshToken} {
		if _, err := svc.Refresh(context.Background(), now, tok, nil); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Fatalf("expected ErrInvalidRefreshToken, got: %v", err)
		}
	}
}
