package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"burrow/cmd/identity"
	"burrow/cmd/internal/auth/token"
)

// Tier is the access level a route demands.
type Tier int

const (
	// TierPublic routes never look at credentials.
	TierPublic Tier = iota
	// TierOptional routes attach an identity when a valid token is present
	// and proceed anonymously otherwise.
	TierOptional
	// TierRequired routes reject requests without a valid token.
	TierRequired
)

// DefaultAccessCookieName carries the access token for browser clients.
const DefaultAccessCookieName = "access_token"

// Identity is the verified caller attached to the request context.
type Identity struct {
	UserID    string
	Name      string
	UserGroup string
}

// Store is the slice of identity persistence the group gate needs.
// *identity.PostgresStore satisfies it.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (identity.User, error)
}

// Gate builds tier and group middleware around a token codec and a store.
type Gate struct {
	codec      token.Codec
	store      Store
	cookieName string
	now        func() time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithAccessCookieName overrides the access-token cookie name.
func WithAccessCookieName(name string) Option {
	return func(g *Gate) {
		if strings.TrimSpace(name) != "" {
			g.cookieName = name
		}
	}
}

// WithClock overrides the gate's clock (tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// New constructs a Gate. The store may be nil if RequireGroups is never used.
func New(codec token.Codec, store Store, opts ...Option) *Gate {
	g := &Gate{
		codec:      codec,
		store:      store,
		cookieName: DefaultAccessCookieName,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Require returns middleware enforcing the given tier.
func (g *Gate) Require(tier Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tier == TierPublic {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := g.extractToken(r)
			if !ok {
				if tier == TierOptional {
					next.ServeHTTP(w, r)
					return
				}
				gateError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}

			claims, err := g.codec.Verify(raw, g.now())
			if err != nil {
				if tier == TierOptional {
					// A bad token on an optional route degrades to anonymous.
					next.ServeHTTP(w, r)
					return
				}
				gateError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
				return
			}

			id := Identity{
				UserID:    claims.UserID,
				Name:      claims.Name,
				UserGroup: claims.UserGroup,
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// RequireGroups returns middleware allowing only the named groups.
//
// The caller's group is re-read from the store on every request; the group
// claim inside the token is treated as a hint only. Use after Require(TierRequired).
func (g *Gate) RequireGroups(groups ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(groups))
	for _, name := range groups {
		allowed[strings.TrimSpace(name)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				gateError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}

			user, err := g.store.GetUserByID(r.Context(), id.UserID)
			if err != nil {
				if identity.IsNotFound(err) {
					gateError(w, http.StatusUnauthorized, "unauthenticated", "unknown user")
					return
				}
				gateError(w, http.StatusInternalServerError, "internal", "internal error")
				return
			}

			if !allowed[user.GroupName] {
				gateError(w, http.StatusForbidden, "forbidden", "insufficient group")
				return
			}

			// Propagate the authoritative group, not the token's copy.
			id.UserGroup = user.GroupName
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// MemberOf reports whether the user currently belongs to the named group.
//
// The group is read from the store, never from a token claim, so a revoked
// privilege takes effect on the next request rather than at token expiry.
func (g *Gate) MemberOf(ctx context.Context, userID, group string) (bool, error) {
	user, err := g.store.GetUserByID(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return user.GroupName == group, nil
}

// extractToken prefers the browser cookie and falls back to a Bearer header.
func (g *Gate) extractToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(g.cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		if v := strings.TrimSpace(auth[len(prefix):]); v != "" {
			return v, true
		}
	}
	return "", false
}

type ctxKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the verified caller, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// gateError mirrors the API error envelope so middleware rejections and
// handler rejections look identical on the wire.
func gateError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
