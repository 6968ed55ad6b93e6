// Package identity implements Burrow's identity & authentication foundation.
//
// It contains security primitives (ULID, password hashing, token hashing),
// the canonical user/group/authenticator types, and the Postgres persistence
// layer used by the credential, gate and passkey services.
//
// This package is intentionally dependency-light and security-first.
package identity
