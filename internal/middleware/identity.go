package middleware

// identity.go keeps the authenticated caller on the echo context.  The
// permission gates store the Principal; handlers and the rate limiter
// read it back.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/session"
)

const principalKey = "principal"

// SetPrincipal stores p on the context.
func SetPrincipal(c echo.Context, p session.Principal) { c.Set(principalKey, p) }

// PrincipalFrom returns the Principal stored by a gate, if any.
func PrincipalFrom(c echo.Context) (session.Principal, bool) {
	p, ok := c.Get(principalKey).(session.Principal)
	return p, ok
}

// userID returns the authenticated user id, or "guest".
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok && p.UserID != "" {
		return p.UserID
	}
	return "guest"
}
