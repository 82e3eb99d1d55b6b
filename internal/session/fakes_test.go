package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

type fakeUsers struct{ byEmail map[string]model.User }

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := f.byEmail[repository.NormalizeEmail(email)]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type fakeSessions struct {
	mu     sync.Mutex
	hasher utils.Hasher
	rows   map[string]*model.Session
}

func (f *fakeSessions) Create(_ context.Context, userID, raw string, exp time.Time) (model.Session, error) {
	h, err := f.hasher.Hash(utils.RefreshDigest(raw))
	if err != nil {
		return model.Session{}, err
	}
	s := model.Session{ID: uuid.NewString(), UserID: userID, RefreshTokenHash: h, ExpiresAt: exp}
	f.mu.Lock()
	f.rows[s.ID] = &s
	f.mu.Unlock()
	return s, nil
}

func (f *fakeSessions) ActiveForUser(_ context.Context, userID string, now time.Time) ([]model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.rows {
		if s.UserID == userID && s.Active(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessions) Match(sessions []model.Session, raw string) (model.Session, bool) {
	d := utils.RefreshDigest(raw)
	for _, s := range sessions {
		if f.hasher.Compare(s.RefreshTokenHash, d) {
			return s, true
		}
	}
	return model.Session{}, false
}

func (f *fakeSessions) revokeLocked(id string) error {
	s, ok := f.rows[id]
	if !ok || s.Revoked {
		return repository.ErrAlreadyRevoked
	}
	s.Revoked = true
	return nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldID, userID, raw string, exp time.Time) (model.Session, error) {
	h, err := f.hasher.Hash(utils.RefreshDigest(raw))
	if err != nil {
		return model.Session{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.revokeLocked(oldID); err != nil {
		return model.Session{}, err
	}
	s := model.Session{ID: uuid.NewString(), UserID: userID, RefreshTokenHash: h, ExpiresAt: exp}
	f.rows[s.ID] = &s
	return s, nil
}

func (f *fakeSessions) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok {
		s.Revoked = true
	}
	return nil
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.rows {
		if s.UserID == userID && !s.Revoked {
			s.Revoked = true
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.rows {
		if !s.Revoked {
			n++
		}
	}
	return n
}

type fakeRoles struct {
	mu        sync.Mutex
	userRole  map[string]string
	rolePerms map[string][]model.Permission
}

func (f *fakeRoles) RoleIDForUser(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.userRole[userID]
	if !ok {
		return "", rbac.ErrUserNotFound
	}
	return r, nil
}

// deactivate makes userID unresolvable, as the role store does for an
// inactive account.
func (f *fakeRoles) deactivate(userID string) {
	f.mu.Lock()
	delete(f.userRole, userID)
	f.mu.Unlock()
}

func (f *fakeRoles) PermissionsForRole(_ context.Context, roleID string) ([]model.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Permission(nil), f.rolePerms[roleID]...), nil
}

func (f *fakeRoles) setPerms(roleID string, perms ...model.Permission) {
	f.mu.Lock()
	f.rolePerms[roleID] = perms
	f.mu.Unlock()
}

type harness struct {
	codec    *utils.TokenCodec
	hasher   utils.Hasher
	users    *fakeUsers
	sessions *fakeSessions
	roles    *fakeRoles
	resolver *rbac.Resolver
	mgr      *Manager
}

var invUpdate = model.Permission{ID: "p1", Module: "inventory", Action: "update"}

func newCodec(t *testing.T) *utils.TokenCodec {
	t.Helper()
	codec, err := utils.NewTokenCodec(utils.CodecConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		Issuer:        "bean-counter",
		Audience:      "bean-counter-web",
	})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	hasher := utils.BcryptHasher{Cost: bcrypt.MinCost}
	pw, err := hasher.Hash("secret")
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		codec:  newCodec(t),
		hasher: hasher,
		users: &fakeUsers{byEmail: map[string]model.User{
			"a@b.com":   {ID: "u1", Email: "a@b.com", PasswordHash: pw, RoleID: "r1", IsActive: true},
			"off@b.com": {ID: "u2", Email: "off@b.com", PasswordHash: pw, RoleID: "r1", IsActive: false},
		}},
		sessions: &fakeSessions{hasher: hasher, rows: map[string]*model.Session{}},
		roles: &fakeRoles{
			userRole:  map[string]string{"u1": "r1", "u2": "r1"},
			rolePerms: map[string][]model.Permission{"r1": {invUpdate}},
		},
	}
	h.resolver = rbac.NewResolver(h.roles)
	opts.Cookies = CookiePolicy{Secure: true}
	h.mgr = NewManager(h.users, h.sessions, h.resolver, h.codec, hasher, opts)
	return h
}

// login signs u1 in and returns the jar holding its cookies.
func (h *harness) login(t *testing.T) *MemoryJar {
	t.Helper()
	jar := NewMemoryJar(nil)
	if _, err := h.mgr.Login(context.Background(), jar, "a@b.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return jar
}
