package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultUserGroup is assumed when a verified token carries no group claim.
const DefaultUserGroup = "common"

// AccessClaims is the minimal identity envelope propagated across the HTTP layer.
type AccessClaims struct {
	UserID    string
	Name      string
	UserGroup string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// Codec issues and verifies short-lived access tokens.
type Codec interface {
	Issue(userID, name, userGroup string, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (AccessClaims, error)
}

// jwtClaims is the wire shape of an access token payload.
type jwtClaims struct {
	Name      string `json:"name,omitempty"`
	UserGroup string `json:"userGroup,omitempty"`
	jwt.RegisteredClaims
}

type hs256Codec struct {
	issuer    string
	audience  string
	ttl       time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewHS256Codec builds a Codec signing HS256 JWTs with a shared secret.
//
// Verification pins the algorithm to HS256 and enforces issuer, audience
// and expiry; leeway covers minor clock differences between hosts.
func NewHS256Codec(cfg Config) (Codec, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrConfig
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, ErrConfig
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}

	return &hs256Codec{
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    cfg.Secret,
	}, nil
}

func (c *hs256Codec) Issue(userID, name, userGroup string, now time.Time) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidToken
	}

	exp := now.Add(c.ttl)

	claims := jwtClaims{
		Name:      name,
		UserGroup: userGroup,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *hs256Codec) Verify(tokenStr string, now time.Time) (AccessClaims, error) {
	if tokenStr == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	claims := &jwtClaims{}

	// Build a fresh parser per call; the time func pins validation to the
	// caller-provided clock so tests and services stay deterministic.
	parsed, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return AccessClaims{}, ErrInvalidToken
	}

	if claims.Subject == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	group := claims.UserGroup
	if group == "" {
		group = DefaultUserGroup
	}

	out := AccessClaims{
		UserID:    claims.Subject,
		Name:      claims.Name,
		UserGroup: group,
		Issuer:    claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
