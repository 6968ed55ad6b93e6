package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// CreateAuthenticator persists a newly registered WebAuthn credential.
// A duplicate credential ID reports ErrConflict.
func (s *PostgresStore) CreateAuthenticator(ctx context.Context, a Authenticator) error {
	const op = "identity.CreateAuthenticator"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(a.CredentialID) == "" {
		return pgInvalid(op, "missing credential_id")
	}
	if strings.TrimSpace(a.UserID) == "" {
		return pgInvalid(op, "missing user_id")
	}
	if len(a.PublicKey) == 0 {
		return pgInvalid(op, "missing public_key")
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	transports := a.Transports
	if transports == nil {
		transports = []string{}
	}

	auths := pgIdent(s.schema, "authenticators")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+auths+` (
		     id, user_id, public_key, sign_count, device_type, backed_up, transports, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.CredentialID,
		a.UserID,
		a.PublicKey,
		int64(a.SignCount),
		a.DeviceType,
		a.BackedUp,
		transports,
		createdAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		if pgIsForeignKeyViolation(err) {
			return NotFoundError{Op: op, Resource: "user"}
		}
		return err
	}
	return nil
}

// AuthenticatorsByUser lists all credentials registered by a user,
// oldest first. A user without credentials gets an empty slice, not an error.
func (s *PostgresStore) AuthenticatorsByUser(ctx context.Context, userID string) ([]Authenticator, error) {
	const op = "identity.AuthenticatorsByUser"

	if s == nil || s.pool == nil {
		return nil, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, pgInvalid(op, "missing user_id")
	}

	auths := pgIdent(s.schema, "authenticators")

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, public_key, sign_count, device_type, backed_up, transports, created_at
		   FROM `+auths+`
		  WHERE user_id = $1
		  ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Authenticator, 0, 4)
	for rows.Next() {
		a, err := scanAuthenticator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAuthenticator returns a credential by its ID.
// Returns ErrNotFound for unknown credential IDs.
func (s *PostgresStore) GetAuthenticator(ctx context.Context, credentialID string) (Authenticator, error) {
	const op = "identity.GetAuthenticator"

	if s == nil || s.pool == nil {
		return Authenticator{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Authenticator{}, err
	}
	if strings.TrimSpace(credentialID) == "" {
		return Authenticator{}, pgInvalid(op, "missing credential_id")
	}

	auths := pgIdent(s.schema, "authenticators")

	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, public_key, sign_count, device_type, backed_up, transports, created_at
		   FROM `+auths+`
		  WHERE id = $1`,
		credentialID,
	)
	a, err := scanAuthenticator(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Authenticator{}, NotFoundError{Op: op, Resource: "authenticator"}
		}
		return Authenticator{}, err
	}
	return a, nil
}

// AdvanceSignCount moves an authenticator's counter strictly forward.
//
// English comment:
// The guarded UPDATE enforces the monotonic-counter invariant in the database:
// a replayed or cloned assertion carrying an old counter loses the condition
// and surfaces as ErrConflict, never as a silent overwrite.
func (s *PostgresStore) AdvanceSignCount(ctx context.Context, credentialID string, newCount uint32) error {
	const op = "identity.AdvanceSignCount"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(credentialID) == "" {
		return pgInvalid(op, "missing credential_id")
	}

	auths := pgIdent(s.schema, "authenticators")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+auths+`
		    SET sign_count = $1
		  WHERE id = $2
		    AND sign_count < $1`,
		int64(newCount), credentialID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ConflictError{Op: op, Field: "sign_count"}
	}
	return nil
}

func scanAuthenticator(row pgx.Row) (Authenticator, error) {
	var (
		a         Authenticator
		signCount int64
	)
	err := row.Scan(
		&a.CredentialID,
		&a.UserID,
		&a.PublicKey,
		&signCount,
		&a.DeviceType,
		&a.BackedUp,
		&a.Transports,
		&a.CreatedAt,
	)
	if err != nil {
		return Authenticator{}, err
	}
	a.SignCount = uint32(signCount)
	return a, nil
}
