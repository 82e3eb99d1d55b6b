package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/iliyamo/bean-counter/internal/utils"
)

// Cookie names.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// CookieReader is the read half of a CookieJar.  The gatekeeper only
// gets this half.
type CookieReader interface {
	Get(name string) (string, bool)
}

// CookieJar reads request cookies and writes response cookies.
type CookieJar interface {
	CookieReader
	Set(c *http.Cookie)
	Delete(name string)
}

// CookiePolicy fixes the attributes of the auth cookies.  Secure is only
// turned off for plain-http local development.
type CookiePolicy struct {
	Secure bool
}

// Cookie builds an auth cookie whose expiry is the token expiry.
func (p CookiePolicy) Cookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetAuthCookies writes both tokens.
func (p CookiePolicy) SetAuthCookies(jar CookieJar, access utils.AccessToken, refresh utils.RefreshToken) {
	jar.Set(p.Cookie(AccessCookie, access.Token, access.Exp))
	jar.Set(p.Cookie(RefreshCookie, refresh.Raw, refresh.Exp))
}

// ClearAuthCookies deletes both tokens.
func (p CookiePolicy) ClearAuthCookies(jar CookieJar) {
	jar.Delete(AccessCookie)
	jar.Delete(RefreshCookie)
}

// MemoryJar is a CookieJar backed by a map.  Set stores the value,
// Delete removes it; Written keeps every cookie written, in order.
type MemoryJar struct {
	mu      sync.Mutex
	values  map[string]string
	Written []*http.Cookie
}

func NewMemoryJar(initial map[string]string) *MemoryJar {
	j := &MemoryJar{values: map[string]string{}}
	for k, v := range initial {
		j.values[k] = v
	}
	return j
}

func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	v, ok := j.values[name]
	return v, ok && v != ""
}

func (j *MemoryJar) Set(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.values[c.Name] = c.Value
	j.Written = append(j.Written, c)
}

func (j *MemoryJar) Delete(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.values, name)
	j.Written = append(j.Written, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
}

// Last returns the most recent cookie written under name.
func (j *MemoryJar) Last(name string) *http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.Written) - 1; i >= 0; i-- {
		if j.Written[i].Name == name {
			return j.Written[i]
		}
	}
	return nil
}
