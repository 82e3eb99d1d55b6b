package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/logging"
	"github.com/iliyamo/bean-counter/internal/metrics"
	"github.com/iliyamo/bean-counter/internal/session"
)

// Gatekeeper applies the edge decision to GET and HEAD requests: pages
// under /dashboard without a valid access token are sent to the refresh
// endpoint (or to login), and a logged-in visitor of /login goes to the
// dashboard.  Other methods fall through to the action gates.
func Gatekeeper(edge *session.Edge) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				return next(c)
			}
			path := r.URL.Path
			d := edge.Decide(path, Reader(c))
			if session.Protected(path) || path == session.LoginPath {
				metrics.Gate("edge", d.String())
			}
			switch d {
			case session.RedirectRefresh:
				return c.Redirect(http.StatusFound, session.RefreshURL(r.URL.RequestURI()))
			case session.RedirectLogin:
				return c.Redirect(http.StatusFound, session.LoginPath)
			case session.RedirectDashboard:
				return c.Redirect(http.StatusFound, session.DashboardPath)
			}
			return next(c)
		}
	}
}

// RequireLogin authenticates the caller of a page that needs no specific
// permission.  Failures redirect to login.
func RequireLogin(gate *session.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := gate.Authenticate(c.Request().Context(), Reader(c))
			if err != nil {
				return denied(c, "page", "", err, func() error {
					return c.Redirect(http.StatusFound, session.LoginPath)
				})
			}
			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// RequirePermission guards a JSON action.  A caller who is not logged in
// and one who lacks key get the same 403 body.
func RequirePermission(gate *session.Gate, key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := gate.Require(c.Request().Context(), Reader(c), key)
			if err != nil {
				return denied(c, "action", key, err, func() error {
					return c.JSON(http.StatusForbidden, echo.Map{"error": session.MsgPermissionDenied})
				})
			}
			metrics.Gate("action", "allow")
			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// RequirePagePermission guards a page; failures redirect to the
// no-permission view.
func RequirePagePermission(gate *session.Gate, key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := gate.Require(c.Request().Context(), Reader(c), key)
			if err != nil {
				return denied(c, "page", key, err, func() error {
					return c.Redirect(http.StatusFound, session.NoPermissionPath)
				})
			}
			metrics.Gate("page", "allow")
			SetPrincipal(c, p)
			return next(c)
		}
	}
}

// denied logs the internal kind of an auth failure and runs respond.
// Errors without a kind are storage failures and surface as 500.
func denied(c echo.Context, gateName, key string, err error, respond func() error) error {
	log := logging.With("gate")
	kind, ok := session.KindOf(err)
	if !ok {
		log.Error().Err(err).Str("path", c.Path()).Msg("permission check failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	metrics.Gate(gateName, kind.String())
	log.Info().
		Str("kind", kind.String()).
		Str("permission", key).
		Str("path", c.Request().URL.Path).
		Msg("access denied")
	return respond()
}
