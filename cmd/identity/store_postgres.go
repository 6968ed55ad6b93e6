package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// English design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - RedeemRefreshToken is a single conditional DELETE ... RETURNING, so the
//   database serializes concurrent redeemers without explicit locking.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "burrow").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "burrow",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// DefaultGroupName is assigned to users registered without an explicit group.
const DefaultGroupName = "common"

// CreateUser creates a new user inside a transaction, resolving its group
// by name. Unknown group names fail with ErrNotFound (the role set is closed).
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return CreateUserResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return CreateUserResult{}, err
	}

	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)

	if email == "" {
		return CreateUserResult{}, pgInvalid(op, "email is required")
	}
	if username == "" {
		return CreateUserResult{}, pgInvalid(op, "username is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	emailNorm := NormalizeEmail(email)
	usernameNorm := NormalizeUsername(username)

	groupName := strings.TrimSpace(in.GroupName)
	if groupName == "" {
		groupName = DefaultGroupName
	}

	// Hash password, if present. Passkey-only accounts carry no hash.
	var pwHash *string
	if in.Password != nil {
		if strings.TrimSpace(*in.Password) == "" {
			return CreateUserResult{}, pgInvalid(op, "password is empty")
		}
		h, err := HashPassword(*in.Password, DefaultArgon2idParams())
		if err != nil {
			return CreateUserResult{}, pgInvalid(op, err.Error())
		}
		pwHash = &h
	}

	userID, err := NewULID(now)
	if err != nil {
		return CreateUserResult{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return CreateUserResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	groups := pgIdent(s.schema, "user_groups")
	users := pgIdent(s.schema, "users")

	var groupID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM `+groups+` WHERE name = $1`,
		groupName,
	).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreateUserResult{}, NotFoundError{Op: op, Resource: "user_group"}
		}
		return CreateUserResult{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, email_norm, username, username_norm, password_hash, avatar, group_id, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		userID,
		email,
		emailNorm,
		username,
		usernameNorm,
		pwHash,
		pgTrimPtr(in.Avatar),
		groupID,
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return CreateUserResult{}, ConflictError{Op: op, Field: field}
		}
		return CreateUserResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateUserResult{}, err
	}

	out := User{
		ID:           userID,
		Email:        email,
		EmailNorm:    emailNorm,
		Username:     username,
		UsernameNorm: usernameNorm,
		PasswordHash: pwHash,
		Avatar:       pgTrimPtr(in.Avatar),
		GroupID:      groupID,
		GroupName:    groupName,
		CreatedAt:    now,
	}

	return CreateUserResult{User: out}, nil
}

const userSelectCols = `u.id, u.email, u.email_norm, u.username, u.username_norm,
        u.password_hash, u.avatar, u.group_id, g.name, u.pending_challenge, u.created_at`

// GetUserByID returns a user joined with its group.
// Returns ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, pgInvalid(op, "missing user_id")
	}

	users := pgIdent(s.schema, "users")
	groups := pgIdent(s.schema, "user_groups")

	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+`
		   FROM `+users+` u
		   JOIN `+groups+` g ON g.id = u.group_id
		  WHERE u.id = $1`,
		userID,
	)
	return scanUser(row, op, "user")
}

// GetUserByLogin resolves a user by normalized email or username.
// Returns ErrNotFound when no user matches.
func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (User, error) {
	const op = "identity.GetUserByLogin"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	login = strings.TrimSpace(login)
	if login == "" {
		return User{}, pgInvalid(op, "missing login")
	}

	norm := NormalizeEmail(login)

	users := pgIdent(s.schema, "users")
	groups := pgIdent(s.schema, "user_groups")

	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+`
		   FROM `+users+` u
		   JOIN `+groups+` g ON g.id = u.group_id
		  WHERE u.email_norm = $1 OR u.username_norm = $1`,
		norm,
	)
	return scanUser(row, op, "user")
}

// GetGroupByName resolves a group row by exact name.
// Returns ErrNotFound for names outside the closed role set.
func (s *PostgresStore) GetGroupByName(ctx context.Context, name string) (UserGroup, error) {
	const op = "identity.GetGroupByName"

	if s == nil || s.pool == nil {
		return UserGroup{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return UserGroup{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return UserGroup{}, pgInvalid(op, "missing name")
	}

	groups := pgIdent(s.schema, "user_groups")

	var out UserGroup
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description FROM `+groups+` WHERE name = $1`,
		name,
	).Scan(&out.ID, &out.Name, &out.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserGroup{}, NotFoundError{Op: op, Resource: "user_group"}
		}
		return UserGroup{}, err
	}
	return out, nil
}

// SetPendingChallenge stores the serialized ceremony session on the user row.
// A previous challenge, if any, is overwritten (last writer wins).
func (s *PostgresStore) SetPendingChallenge(ctx context.Context, userID string, challenge string) error {
	const op = "identity.SetPendingChallenge"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return pgInvalid(op, "missing user_id")
	}
	if strings.TrimSpace(challenge) == "" {
		return pgInvalid(op, "missing challenge")
	}

	users := pgIdent(s.schema, "users")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET pending_challenge = $1 WHERE id = $2`,
		challenge, userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// TakePendingChallenge atomically reads and clears the stored challenge.
//
// English comment:
// The single conditional UPDATE ... RETURNING makes the challenge one-shot:
// of two concurrent finishers only one observes it, the other gets ErrNotFound.
func (s *PostgresStore) TakePendingChallenge(ctx context.Context, userID string) (string, error) {
	const op = "identity.TakePendingChallenge"

	if s == nil || s.pool == nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(userID) == "" {
		return "", pgInvalid(op, "missing user_id")
	}

	users := pgIdent(s.schema, "users")

	var challenge string
	err := s.pool.QueryRow(ctx,
		`UPDATE `+users+`
		    SET pending_challenge = NULL
		  WHERE id = $1
		    AND pending_challenge IS NOT NULL
		RETURNING pending_challenge`,
		userID,
	).Scan(&challenge)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", NotFoundError{Op: op, Resource: "pending_challenge"}
		}
		return "", err
	}
	return challenge, nil
}

// ---- helpers ----

func scanUser(row pgx.Row, op, resource string) (User, error) {
	var out User
	err := row.Scan(
		&out.ID,
		&out.Email,
		&out.EmailNorm,
		&out.Username,
		&out.UsernameNorm,
		&out.PasswordHash,
		&out.Avatar,
		&out.GroupID,
		&out.GroupName,
		&out.PendingChallenge,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: resource}
		}
		return User{}, err
	}
	return out, nil
}

// pgTrimPtr trims a string pointer, returning nil if result is empty.
func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// English comment:
	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_username_norm":
		return "username", true
	case "uq_users_email_norm":
		return "email", true
	case "uq_refresh_tokens_token_hash":
		return "refresh_token", true
	case "authenticators_pkey":
		return "credential_id", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "refresh") && strings.Contains(c, "token"):
			return "refresh_token", true
		case strings.Contains(c, "authenticator"):
			return "credential_id", true
		default:
			return "unique", true
		}
	}
}
