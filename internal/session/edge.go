package session

import (
	"net/url"
	"strings"

	"github.com/iliyamo/bean-counter/internal/utils"
)

// Well-known paths.
const (
	LoginPath        = "/login"
	DashboardPath    = "/dashboard"
	RefreshPath      = "/api/auth/refresh"
	NoPermissionPath = "/dashboard/no-permission"
)

// Decision is the gatekeeper's verdict for one request.
type Decision int

const (
	Allow Decision = iota
	RedirectRefresh
	RedirectLogin
	RedirectDashboard
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectRefresh:
		return "refresh"
	case RedirectLogin:
		return "login"
	case RedirectDashboard:
		return "dashboard"
	}
	return "unknown"
}

// Protected reports whether path is under the dashboard root.
func Protected(path string) bool {
	return path == DashboardPath || strings.HasPrefix(path, DashboardPath+"/")
}

// Edge is the request-level gatekeeper.  Decide only verifies token
// signatures and expiry; it never touches storage or writes cookies.
type Edge struct {
	codec *utils.TokenCodec
}

func NewEdge(codec *utils.TokenCodec) *Edge { return &Edge{codec: codec} }

// Decide returns the verdict for a request to path with the given
// cookies.  Paths outside the dashboard and login are always allowed.
func (e *Edge) Decide(path string, jar CookieReader) Decision {
	accessOK := e.valid(jar, AccessCookie, true)
	if path == LoginPath {
		if accessOK {
			return RedirectDashboard
		}
		return Allow
	}
	if !Protected(path) {
		return Allow
	}
	if accessOK {
		return Allow
	}
	if e.valid(jar, RefreshCookie, false) {
		return RedirectRefresh
	}
	return RedirectLogin
}

func (e *Edge) valid(jar CookieReader, name string, access bool) bool {
	raw, ok := jar.Get(name)
	if !ok {
		return false
	}
	var err error
	if access {
		_, err = e.codec.VerifyAccessToken(raw)
	} else {
		_, err = e.codec.VerifyRefreshToken(raw)
	}
	return err == nil
}

// SafeReturnTo returns target when it is a local absolute path and the
// dashboard otherwise.  "//host" and "/\host" are rejected because
// browsers treat them as scheme-relative URLs.
func SafeReturnTo(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return DashboardPath
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return DashboardPath
	}
	return target
}

// RefreshURL is the refresh endpoint carrying returnTo.
func RefreshURL(returnTo string) string {
	return RefreshPath + "?" + url.Values{"returnTo": {SafeReturnTo(returnTo)}}.Encode()
}
