package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/utils"
)

// Principal is the caller of a protected operation.  Permissions come
// from storage at the time of the request; Hint is what the access
// token claimed and is only good for rendering.
type Principal struct {
	UserID      string
	RoleID      string
	Permissions rbac.Set
	Hint        []string
}

// Gate authorizes protected operations.
type Gate struct {
	codec *utils.TokenCodec
	roles *rbac.Resolver
}

func NewGate(codec *utils.TokenCodec, roles *rbac.Resolver) *Gate {
	return &Gate{codec: codec, roles: roles}
}

// Authenticate resolves the caller from the access cookie.  The role
// and permissions are read fresh from storage, not from the token.
func (g *Gate) Authenticate(ctx context.Context, jar CookieReader) (Principal, error) {
	raw, ok := jar.Get(AccessCookie)
	if !ok {
		return Principal{}, authErr(KindUnauthorized, MsgPermissionDenied, nil)
	}
	payload, err := g.codec.VerifyAccessToken(raw)
	if err != nil {
		return Principal{}, authErr(KindUnauthorized, MsgPermissionDenied, err)
	}
	roleID, set, err := g.roles.ForUser(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			return Principal{}, authErr(KindUnauthorized, MsgPermissionDenied, err)
		}
		return Principal{}, fmt.Errorf("resolve permissions: %w", err)
	}
	return Principal{UserID: payload.UserID, RoleID: roleID, Permissions: set, Hint: payload.Permissions}, nil
}

// Require authenticates the caller and checks key.  Not logged in and
// logged in without the permission both produce an AuthError with the
// same message; only Kind tells them apart.
func (g *Gate) Require(ctx context.Context, jar CookieReader, key string) (Principal, error) {
	p, err := g.Authenticate(ctx, jar)
	if err != nil {
		return Principal{}, err
	}
	if !p.Permissions.Can(key) {
		return Principal{}, authErr(KindForbidden, MsgPermissionDenied, nil)
	}
	return p, nil
}
