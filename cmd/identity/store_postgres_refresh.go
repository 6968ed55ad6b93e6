package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	defaultRefreshTTL = 7 * 24 * time.Hour
	maxRefreshTTL     = 90 * 24 * time.Hour
)

// IssueRefreshToken mints an opaque refresh token and stores only its hash.
func (s *PostgresStore) IssueRefreshToken(ctx context.Context, in IssueRefreshTokenInput) (IssueRefreshTokenResult, error) {
	const op = "identity.IssueRefreshToken"

	if s == nil || s.pool == nil {
		return IssueRefreshTokenResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return IssueRefreshTokenResult{}, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return IssueRefreshTokenResult{}, pgInvalid(op, "missing user_id")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	if ttl > maxRefreshTTL {
		ttl = maxRefreshTTL
	}

	tokenID, err := NewULID(now)
	if err != nil {
		return IssueRefreshTokenResult{}, err
	}

	plain, err := NewOpaqueToken(in.TokenBytes)
	if err != nil {
		return IssueRefreshTokenResult{}, err
	}
	hash := HashRefreshTokenHex(plain)

	expiresAt := now.Add(ttl)

	tokens := pgIdent(s.schema, "refresh_tokens")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+tokens+` (
		     id, token_hash, user_id, issued_at, expires_at, device_info
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		tokenID,
		hash,
		in.UserID,
		now,
		expiresAt,
		pgTrimPtr(in.DeviceInfo),
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return IssueRefreshTokenResult{}, ConflictError{Op: op, Field: field}
		}
		if pgIsForeignKeyViolation(err) {
			return IssueRefreshTokenResult{}, NotFoundError{Op: op, Resource: "user"}
		}
		return IssueRefreshTokenResult{}, err
	}

	out := RefreshToken{
		ID:         tokenID,
		TokenHash:  hash,
		UserID:     in.UserID,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		DeviceInfo: pgTrimPtr(in.DeviceInfo),
	}

	return IssueRefreshTokenResult{Token: out, PlainToken: plain}, nil
}

// RedeemRefreshToken consumes a refresh token atomically.
//
// English comment:
// A single DELETE ... RETURNING both validates and invalidates the token.
// Of two concurrent redeemers the database lets exactly one delete the row;
// the loser sees zero rows and gets the same indistinguishable ErrNotActive
// as an unknown or expired token (no probing oracle).
func (s *PostgresStore) RedeemRefreshToken(ctx context.Context, plainToken string, now time.Time) (string, error) {
	const op = "identity.RedeemRefreshToken"

	if s == nil || s.pool == nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return "", pgInvalid(op, "missing refresh_token")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash := HashRefreshTokenHex(plainToken)
	tokens := pgIdent(s.schema, "refresh_tokens")

	var (
		userID    string
		expiresAt time.Time
	)

	err := s.pool.QueryRow(ctx,
		`DELETE FROM `+tokens+`
		  WHERE token_hash = $1
		RETURNING user_id, expires_at`,
		hash,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notActiveRedeem()
		}
		return "", err
	}

	// An expired row is already gone by now; report it exactly like a miss.
	if !expiresAt.After(now) {
		return "", notActiveRedeem()
	}

	return userID, nil
}

// DeleteRefreshToken discards a token by its plain value.
// Deleting an unknown token is a no-op (sign-out is idempotent).
func (s *PostgresStore) DeleteRefreshToken(ctx context.Context, plainToken string) error {
	const op = "identity.DeleteRefreshToken"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil
	}

	hash := HashRefreshTokenHex(plainToken)
	tokens := pgIdent(s.schema, "refresh_tokens")

	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+tokens+` WHERE token_hash = $1`,
		hash,
	)
	return err
}

// DeleteUserRefreshTokens discards every refresh token of a user (idempotent).
func (s *PostgresStore) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	const op = "identity.DeleteUserRefreshTokens"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return pgInvalid(op, "missing user_id")
	}

	tokens := pgIdent(s.schema, "refresh_tokens")

	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+tokens+` WHERE user_id = $1`,
		userID,
	)
	return err
}

// PruneExpiredRefreshTokens removes rows whose expiry is in the past.
// Intended for a periodic janitor; redemption does not depend on it.
func (s *PostgresStore) PruneExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "identity.PruneExpiredRefreshTokens"

	if s == nil || s.pool == nil {
		return 0, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tokens := pgIdent(s.schema, "refresh_tokens")

	ct, err := s.pool.Exec(ctx,
		`DELETE FROM `+tokens+` WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
