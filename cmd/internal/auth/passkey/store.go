package passkey

import (
	"context"

	"burrow/cmd/identity"
)

// Store is the slice of identity persistence the ceremony manager needs.
// *identity.PostgresStore satisfies it.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (identity.User, error)
	GetUserByLogin(ctx context.Context, login string) (identity.User, error)

	SetPendingChallenge(ctx context.Context, userID string, challenge string) error
	TakePendingChallenge(ctx context.Context, userID string) (string, error)

	CreateAuthenticator(ctx context.Context, a identity.Authenticator) error
	AuthenticatorsByUser(ctx context.Context, userID string) ([]identity.Authenticator, error)
	AdvanceSignCount(ctx context.Context, credentialID string, newCount uint32) error
}
