package identity

import (
	"context"
	"time"
)

// User is Burrow's canonical security principal.
type User struct {
	ID           string
	Email        string
	EmailNorm    string
	Username     string
	UsernameNorm string

	// PasswordHash is nil for passkey-only accounts.
	PasswordHash *string

	Avatar *string

	GroupID   string
	GroupName string

	// PendingChallenge holds the serialized in-flight WebAuthn ceremony
	// session, if any. At most one per user; a new ceremony overwrites it.
	PendingChallenge *string

	CreatedAt time.Time
}

// UserGroup is a row of the closed role set (admin, reviewer, friend, common).
type UserGroup struct {
	ID          string
	Name        string
	Description *string
}

// RefreshToken is a server-side refresh credential record.
// IMPORTANT: TokenHash is stored server-side; the plain token is never stored.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	DeviceInfo *string
}

// Authenticator is a registered WebAuthn credential.
type Authenticator struct {
	// CredentialID is the authenticator-issued credential ID, base64url encoded.
	CredentialID string
	UserID       string
	PublicKey    []byte
	SignCount    uint32
	DeviceType   string
	BackedUp     bool
	Transports   []string
	CreatedAt    time.Time
}

// CreateUserInput describes a user registration request.
// Password is nil for passkey-only registration.
type CreateUserInput struct {
	Email     string
	Username  string
	Password  *string
	Avatar    *string
	GroupName string
	Now       time.Time
}

// CreateUserResult returns the created user.
type CreateUserResult struct {
	User User
}

// IssueRefreshTokenInput mints a refresh token for an authenticated user.
// TTL must be positive; if not, the store will apply a safe default.
type IssueRefreshTokenInput struct {
	UserID     string
	TTL        time.Duration
	TokenBytes int
	DeviceInfo *string
	Now        time.Time
}

// IssueRefreshTokenResult returns the stored record and the *plain* token.
// The plain token must be shown to the client exactly once and never logged.
type IssueRefreshTokenResult struct {
	Token      RefreshToken
	PlainToken string
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error)
	GetUserByID(ctx context.Context, userID string) (User, error)

	// GetUserByLogin resolves a user by normalized email or username.
	GetUserByLogin(ctx context.Context, login string) (User, error)

	GetGroupByName(ctx context.Context, name string) (UserGroup, error)

	IssueRefreshToken(ctx context.Context, in IssueRefreshTokenInput) (IssueRefreshTokenResult, error)

	// RedeemRefreshToken consumes a refresh token in a single conditional
	// delete-and-return statement.
	//
	// Security contract:
	// - The plain token is hashed and matched against the stored hash.
	// - Redemption is atomic: of two concurrent redeemers, exactly one wins;
	//   the loser observes ErrNotActive.
	// - An expired row is removed and reported as ErrNotActive.
	RedeemRefreshToken(ctx context.Context, plainToken string, now time.Time) (userID string, err error)

	// DeleteRefreshToken discards a token by its plain value (idempotent).
	DeleteRefreshToken(ctx context.Context, plainToken string) error
	DeleteUserRefreshTokens(ctx context.Context, userID string) error

	// SetPendingChallenge stores the serialized ceremony session on the user
	// row, overwriting any previous one (last writer wins).
	SetPendingChallenge(ctx context.Context, userID string, challenge string) error

	// TakePendingChallenge atomically reads and clears the stored challenge.
	// Returns ErrNotFound when no challenge is pending.
	TakePendingChallenge(ctx context.Context, userID string) (string, error)

	CreateAuthenticator(ctx context.Context, a Authenticator) error
	AuthenticatorsByUser(ctx context.Context, userID string) ([]Authenticator, error)
	GetAuthenticator(ctx context.Context, credentialID string) (Authenticator, error)

	// AdvanceSignCount moves an authenticator's counter forward.
	// The update is guarded: it succeeds only when newCount is strictly
	// greater than the stored value, otherwise ErrConflict is reported.
	AdvanceSignCount(ctx context.Context, credentialID string, newCount uint32) error
}
