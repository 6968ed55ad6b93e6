// Package token issues and verifies Burrow's signed access tokens.
//
// Access tokens are compact HS256 JWTs carrying the user ID, display name
// and user group. They are short-lived; long-lived state stays server-side
// as opaque refresh tokens (see cmd/internal/auth/credential).
package token
