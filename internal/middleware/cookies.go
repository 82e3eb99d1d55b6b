package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/session"
)

// EchoJar adapts an echo.Context to session.CookieJar.
type EchoJar struct {
	c      echo.Context
	policy session.CookiePolicy
}

// Jar returns the cookie jar of the current request.  Deleted cookies
// keep the policy's attributes so browsers match and drop them.
func Jar(c echo.Context, policy session.CookiePolicy) *EchoJar {
	return &EchoJar{c: c, policy: policy}
}

// Reader returns a read-only jar.
func Reader(c echo.Context) session.CookieReader { return &EchoJar{c: c} }

func (j *EchoJar) Get(name string) (string, bool) {
	ck, err := j.c.Cookie(name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

func (j *EchoJar) Set(ck *http.Cookie) { j.c.SetCookie(ck) }

func (j *EchoJar) Delete(name string) {
	ck := j.policy.Cookie(name, "", time.Unix(0, 0).UTC())
	ck.MaxAge = -1
	j.c.SetCookie(ck)
}
