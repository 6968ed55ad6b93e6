package credential

import (
	"context"
	"time"

	"burrow/cmd/identity"
)

// Store is the slice of identity persistence the credential authority needs.
// *identity.PostgresStore satisfies it.
type Store interface {
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.CreateUserResult, error)
	GetUserByID(ctx context.Context, userID string) (identity.User, error)
	GetUserByLogin(ctx context.Context, login string) (identity.User, error)

	IssueRefreshToken(ctx context.Context, in identity.IssueRefreshTokenInput) (identity.IssueRefreshTokenResult, error)
	RedeemRefreshToken(ctx context.Context, plainToken string, now time.Time) (string, error)
	DeleteRefreshToken(ctx context.Context, plainToken string) error
	DeleteUserRefreshTokens(ctx context.Context, userID string) error
}
