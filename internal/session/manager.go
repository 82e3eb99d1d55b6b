package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

// UserStore is the user lookup the Manager needs.  A missing user is
// repository.ErrNotFound.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// SessionStore is the credential store.  Rotate returns
// repository.ErrAlreadyRevoked when the old row was no longer active;
// Revoke is idempotent.
type SessionStore interface {
	Create(ctx context.Context, userID, refreshRaw string, exp time.Time) (model.Session, error)
	ActiveForUser(ctx context.Context, userID string, now time.Time) ([]model.Session, error)
	Match(sessions []model.Session, refreshRaw string) (model.Session, bool)
	Rotate(ctx context.Context, oldID, userID, newRaw string, exp time.Time) (model.Session, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// LogoutScope selects which sessions a logout revokes.
type LogoutScope string

const (
	// ScopeSession revokes only the session of the presented refresh token.
	ScopeSession LogoutScope = "session"
	// ScopeAll revokes every active session of the token's user.
	ScopeAll LogoutScope = "all"
)

// ParseLogoutScope accepts "session" or "all" (case-insensitive).
func ParseLogoutScope(s string) (LogoutScope, bool) {
	switch LogoutScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSession:
		return ScopeSession, true
	case ScopeAll:
		return ScopeAll, true
	}
	return "", false
}

// Options tunes the Manager.
type Options struct {
	// ReloadPermissionsOnRefresh re-reads the role's permissions when a
	// refresh mints a new access token.  When false the refreshed token
	// carries the role id only and an empty permission hint; page gates
	// still authorize against storage either way.
	ReloadPermissionsOnRefresh bool
	// LogoutScope is the default scope for Logout.
	LogoutScope LogoutScope
	Cookies     CookiePolicy
}

// Grant describes a freshly issued token pair.
type Grant struct {
	UserID      string
	SessionID   string
	RoleID      string
	Permissions []string
	AccessExp   time.Time
	RefreshExp  time.Time
}

// Manager runs login, refresh and logout.
type Manager struct {
	users    UserStore
	sessions SessionStore
	roles    *rbac.Resolver
	codec    *utils.TokenCodec
	hasher   utils.Hasher
	opts     Options
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewManager(users UserStore, sessions SessionStore, roles *rbac.Resolver, codec *utils.TokenCodec, hasher utils.Hasher, opts Options) *Manager {
	if opts.LogoutScope == "" {
		opts.LogoutScope = ScopeAll
	}
	return &Manager{users: users, sessions: sessions, roles: roles, codec: codec, hasher: hasher, opts: opts, now: time.Now}
}

// Cookies returns the cookie policy in use.
func (m *Manager) Cookies() CookiePolicy { return m.opts.Cookies }

// LogoutScope returns the configured default logout scope.
func (m *Manager) LogoutScope() LogoutScope { return m.opts.LogoutScope }

// burnCompare runs a password compare against a fixed hash so a login for
// an unknown email costs the same as one with a wrong password.
func (m *Manager) burnCompare(password string) {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = m.hasher.Hash("bean-counter-timing-equalizer")
	})
	m.hasher.Compare(m.dummyHash, password)
}

// Login verifies email and password, opens a session and sets both
// cookies.  Unknown email, wrong password and inactive account all
// produce the same KindInvalidCredentials error.
func (m *Manager) Login(ctx context.Context, jar CookieJar, email, password string) (Grant, error) {
	u, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			m.burnCompare(password)
			return Grant{}, authErr(KindInvalidCredentials, MsgInvalidCredentials, nil)
		}
		return Grant{}, fmt.Errorf("lookup user: %w", err)
	}
	if !m.hasher.Compare(u.PasswordHash, password) || !u.IsActive {
		return Grant{}, authErr(KindInvalidCredentials, MsgInvalidCredentials, nil)
	}

	set, err := m.roles.ForRole(ctx, u.RoleID)
	if err != nil {
		return Grant{}, fmt.Errorf("resolve permissions: %w", err)
	}
	access, err := m.codec.SignAccessToken(u.ID, u.RoleID, set.Keys())
	if err != nil {
		return Grant{}, err
	}
	refresh, err := m.codec.SignRefreshToken(u.ID)
	if err != nil {
		return Grant{}, err
	}
	s, err := m.sessions.Create(ctx, u.ID, refresh.Raw, refresh.Exp)
	if err != nil {
		return Grant{}, fmt.Errorf("create session: %w", err)
	}
	m.opts.Cookies.SetAuthCookies(jar, access, refresh)
	return Grant{
		UserID:      u.ID,
		SessionID:   s.ID,
		RoleID:      u.RoleID,
		Permissions: set.Keys(),
		AccessExp:   access.Exp,
		RefreshExp:  refresh.Exp,
	}, nil
}

// Refresh redeems the refresh cookie: the matching session is revoked,
// a new pair is minted and persisted, and both cookies are overwritten.
// A refresh token can be redeemed once; presenting it again yields
// KindSessionInvalid.
func (m *Manager) Refresh(ctx context.Context, jar CookieJar) (Grant, error) {
	raw, ok := jar.Get(RefreshCookie)
	if !ok {
		return Grant{}, authErr(KindUnauthorized, MsgNoRefreshToken, nil)
	}
	payload, err := m.codec.VerifyRefreshToken(raw)
	if err != nil {
		return Grant{}, tokenErr(err)
	}

	active, err := m.sessions.ActiveForUser(ctx, payload.UserID, m.now())
	if err != nil {
		return Grant{}, fmt.Errorf("load sessions: %w", err)
	}
	current, ok := m.sessions.Match(active, raw)
	if !ok {
		return Grant{}, authErr(KindSessionInvalid, MsgInvalidSession, nil)
	}

	var (
		roleID string
		perms  []string
	)
	if m.opts.ReloadPermissionsOnRefresh {
		var set rbac.Set
		roleID, set, err = m.roles.ForUser(ctx, payload.UserID)
		perms = set.Keys()
	} else {
		roleID, err = m.roles.RoleID(ctx, payload.UserID)
	}
	if err != nil {
		if errors.Is(err, rbac.ErrUserNotFound) {
			// Deleted or deactivated user: the session must not outlive it.
			if rerr := m.sessions.Revoke(ctx, current.ID); rerr != nil {
				return Grant{}, fmt.Errorf("revoke session: %w", rerr)
			}
			return Grant{}, authErr(KindSessionInvalid, MsgInvalidSession, err)
		}
		return Grant{}, fmt.Errorf("resolve role: %w", err)
	}

	access, err := m.codec.SignAccessToken(payload.UserID, roleID, perms)
	if err != nil {
		return Grant{}, err
	}
	refresh, err := m.codec.SignRefreshToken(payload.UserID)
	if err != nil {
		return Grant{}, err
	}
	next, err := m.sessions.Rotate(ctx, current.ID, payload.UserID, refresh.Raw, refresh.Exp)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRevoked) {
			return Grant{}, authErr(KindSessionInvalid, MsgInvalidSession, err)
		}
		return Grant{}, fmt.Errorf("rotate session: %w", err)
	}
	m.opts.Cookies.SetAuthCookies(jar, access, refresh)
	return Grant{
		UserID:      payload.UserID,
		SessionID:   next.ID,
		RoleID:      roleID,
		Permissions: perms,
		AccessExp:   access.Exp,
		RefreshExp:  refresh.Exp,
	}, nil
}

// Logout revokes sessions for the presented refresh token according to
// scope ("" means the configured default) and always clears both
// cookies.  A missing or unverifiable refresh cookie is not an error.
// The returned error is only ever a storage failure, reported after the
// cookies were cleared.
func (m *Manager) Logout(ctx context.Context, jar CookieJar, scope LogoutScope) (revoked int64, err error) {
	defer m.opts.Cookies.ClearAuthCookies(jar)
	if scope == "" {
		scope = m.opts.LogoutScope
	}
	raw, ok := jar.Get(RefreshCookie)
	if !ok {
		return 0, nil
	}
	payload, verr := m.codec.VerifyRefreshToken(raw)
	if verr != nil {
		return 0, nil
	}

	if scope == ScopeAll {
		revoked, err = m.sessions.RevokeAllForUser(ctx, payload.UserID)
		if err != nil {
			return 0, fmt.Errorf("revoke sessions: %w", err)
		}
		return revoked, nil
	}

	active, err := m.sessions.ActiveForUser(ctx, payload.UserID, m.now())
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	s, ok := m.sessions.Match(active, raw)
	if !ok {
		return 0, nil
	}
	if err := m.sessions.Revoke(ctx, s.ID); err != nil {
		return 0, fmt.Errorf("revoke session: %w", err)
	}
	return 1, nil
}

func tokenErr(err error) *AuthError {
	if errors.Is(err, utils.ErrTokenExpired) {
		return authErr(KindTokenExpired, MsgInvalidSession, err)
	}
	return authErr(KindTokenInvalid, MsgInvalidSession, err)
}
