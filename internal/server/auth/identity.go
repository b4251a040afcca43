package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/logging"
)

// Identity is the authenticated principal of a request or connection.
// The zero value is the anonymous identity.
type Identity struct {
	UserID   int64
	Username string
}

// Authenticated reports whether the identity refers to a real user.
func (i Identity) Authenticated() bool { return i.UserID > 0 }

// UserLookup resolves a user id to its username; common.ErrorNotFound
// means the account no longer exists.
type UserLookup interface {
	UsernameByID(ctx context.Context, id int64) (string, error)
}

// Resolver turns request cookies into an Identity.
type Resolver struct {
	secret []byte
	users  UserLookup
	logger logging.Logger
}

// NewResolver builds a Resolver verifying tokens signed with secret.
func NewResolver(secret []byte, users UserLookup, logger logging.Logger) *Resolver {
	return &Resolver{secret: secret, users: users, logger: logger.With("module", "auth")}
}

// TokenFromRequest returns the access token cookie, falling back to the
// legacy "token" cookie.
func TokenFromRequest(r *http.Request) string {
	for _, name := range []string{common.AccessTokenCookieName, common.LegacyTokenCookieName} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// Resolve never fails: a missing, invalid or expired token, or a token for
// a deleted user, all resolve to the anonymous identity.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) Identity {
	tok := TokenFromRequest(req)
	if tok == "" {
		return Identity{}
	}

	id, err := GetUserIDFromToken(tok, r.secret)
	if err != nil {
		r.logger.Debug(ctx, "token rejected", "error", err)
		return Identity{}
	}

	name, err := r.users.UsernameByID(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			r.logger.Error(ctx, "user lookup failed", "user_id", id, "error", err)
		}
		return Identity{}
	}

	return Identity{UserID: id, Username: name}
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or the anonymous one.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}
