// Package session implements login, refresh-token rotation, logout, the
// permission gate for protected operations and the request-level
// gatekeeper predicate.  Everything here reads and writes cookies through
// a CookieJar so it can be exercised without an HTTP server.
package session

import (
	"errors"
	"fmt"
)

// Kind classifies an authentication failure.  Kinds are for logs,
// metrics and the caller's redirect-or-error choice; clients only ever
// see AuthError.Message.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindTokenInvalid
	KindTokenExpired
	KindSessionInvalid
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindTokenInvalid:
		return "token_invalid"
	case KindTokenExpired:
		return "token_expired"
	case KindSessionInvalid:
		return "session_invalid"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	}
	return "unknown"
}

// Client-visible messages.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgNoRefreshToken     = "No refresh token"
	MsgInvalidSession     = "Invalid session"
	MsgPermissionDenied   = "permission denied"
)

// AuthError is the typed failure of every Manager and Gate operation.
type AuthError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

func authErr(kind Kind, msg string, cause error) *AuthError {
	return &AuthError{Kind: kind, Message: msg, Err: cause}
}

// KindOf extracts the Kind of err.  ok is false for errors that are not
// authentication failures (storage outages and the like).
func KindOf(err error) (kind Kind, ok bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}
