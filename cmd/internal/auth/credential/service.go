package credential

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"burrow/cmd/identity"
	"burrow/cmd/internal/auth/token"
)

// Service implements the high-level credential operations for Burrow.
//
// It registers users, verifies password sign-in, issues access/refresh
// token pairs, and redeems refresh tokens under a single-use rotation model.
type Service struct {
	cfg   Config
	store Store
	codec token.Codec

	// dummyHash is verified against when a login does not resolve to a user,
	// keeping the failure path timing-close to a real password check.
	dummyHash string
}

// Issued is the result of sign-up, sign-in, or refresh rotation.
// It includes a short-lived access token and an opaque refresh token.
type Issued struct {
	User         identity.User
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// SignUpInput describes a registration request.
type SignUpInput struct {
	Email    string
	Username string
	Password string
	Avatar   *string

	// GroupName is optional; empty means the default group.
	GroupName string

	DeviceInfo *string
}

// NewService constructs a Service with the provided configuration, store, and codec.
func NewService(cfg Config, store Store, codec token.Codec) (*Service, error) {
	if store == nil || codec == nil {
		return nil, ErrConfig
	}
	if cfg.RefreshTokenTTL <= 0 {
		return nil, ErrConfig
	}

	dummy, err := identity.HashPassword("burrow-dummy-password-0000", identity.DefaultArgon2idParams())
	if err != nil {
		return nil, err
	}

	return &Service{cfg: cfg, store: store, codec: codec, dummyHash: dummy}, nil
}

// SignUp registers a new user and issues its first token pair.
//
// Email/username conflicts surface as ErrAlreadyRegistered; a group name
// outside the closed role set surfaces as ErrUnknownGroup.
func (s *Service) SignUp(ctx context.Context, now time.Time, in SignUpInput) (Issued, error) {
	pw := in.Password
	res, err := s.store.CreateUser(ctx, identity.CreateUserInput{
		Email:     strings.TrimSpace(in.Email),
		Username:  strings.TrimSpace(in.Username),
		Password:  &pw,
		Avatar:    in.Avatar,
		GroupName: strings.TrimSpace(in.GroupName),
		Now:       now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			return Issued{}, ErrAlreadyRegistered
		}
		if identity.IsNotFound(err) {
			return Issued{}, ErrUnknownGroup
		}
		return Issued{}, err
	}

	return s.IssueTokenPair(ctx, now, res.User, in.DeviceInfo)
}

// SignIn verifies a login (email or username) and password.
//
// Unknown logins, passkey-only accounts, and wrong passwords all return
// ErrInvalidCredentials after a comparably priced hash verification.
func (s *Service) SignIn(ctx context.Context, now time.Time, login, password string, deviceInfo *string) (Issued, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		// Still burn a verify so the cheap reject does not stand out.
		_, _ = identity.VerifyPassword("x", s.dummyHash)
		return Issued{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByLogin(ctx, login)
	if err != nil {
		if identity.IsNotFound(err) {
			_, _ = identity.VerifyPassword(password, s.dummyHash)
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	if user.PasswordHash == nil {
		// Passkey-only account; password sign-in is never valid for it.
		_, _ = identity.VerifyPassword(password, s.dummyHash)
		return Issued{}, ErrInvalidCredentials
	}

	ok, err := identity.VerifyPassword(password, *user.PasswordHash)
	if err != nil || !ok {
		return Issued{}, ErrInvalidCredentials
	}

	return s.IssueTokenPair(ctx, now, user, deviceInfo)
}

// Refresh redeems a refresh token and issues a fresh pair.
//
// Redemption is single-use: the store deletes the row in the same statement
// that reads it, so a concurrent redeemer of the same token loses and gets
// ErrInvalidRefreshToken.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshPlain string, deviceInfo *string) (Issued, error) {
	refreshPlain = strings.TrimSpace(refreshPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshPlain == "" || len(refreshPlain) > 4096 {
		return Issued{}, ErrInvalidRefreshToken
	}

	userID, err := s.store.RedeemRefreshToken(ctx, refreshPlain, now)
	if err != nil {
		if identity.IsNotActive(err) {
			return Issued{}, ErrInvalidRefreshToken
		}
		return Issued{}, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			// User deleted between issuance and redemption.
			return Issued{}, ErrInvalidRefreshToken
		}
		return Issued{}, err
	}

	return s.IssueTokenPair(ctx, now, user, deviceInfo)
}

// SignOut discards a refresh token. Unknown tokens are a no-op.
func (s *Service) SignOut(ctx context.Context, refreshPlain string) error {
	refreshPlain = strings.TrimSpace(refreshPlain)
	if refreshPlain == "" {
		return nil
	}
	return s.store.DeleteRefreshToken(ctx, refreshPlain)
}

// SignOutAll discards every refresh token of a user (logout everywhere).
func (s *Service) SignOutAll(ctx context.Context, userID string) error {
	return s.store.DeleteUserRefreshTokens(ctx, userID)
}

// IssueTokenPair mints the access token and the refresh token concurrently;
// the signing work and the insert do not depend on each other.
func (s *Service) IssueTokenPair(ctx context.Context, now time.Time, user identity.User, deviceInfo *string) (Issued, error) {
	var (
		access    string
		accessExp time.Time
		refresh   identity.IssueRefreshTokenResult
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		access, accessExp, err = s.codec.Issue(user.ID, user.Username, user.GroupName, now)
		return err
	})

	g.Go(func() error {
		var err error
		refresh, err = s.store.IssueRefreshToken(gctx, identity.IssueRefreshTokenInput{
			UserID:     user.ID,
			TTL:        s.cfg.RefreshTokenTTL,
			TokenBytes: s.cfg.RefreshTokenBytes,
			DeviceInfo: deviceInfo,
			Now:        now,
		})
		return err
	})

	if err := g.Wait(); err != nil {
		return Issued{}, err
	}

	return Issued{
		User:         user,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh.PlainToken,
		RefreshExp:   refresh.Token.ExpiresAt,
	}, nil
}
