// Package credential implements Burrow's credential authority.
//
// It registers users, verifies password sign-in, issues access/refresh token
// pairs, and rotates refresh tokens. Refresh tokens are opaque random strings
// redeemed exactly once; access tokens are signed JWTs issued by
// cmd/internal/auth/token.
package credential
