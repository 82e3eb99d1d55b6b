package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/queue"
	"github.com/iliyamo/bean-counter/internal/realtime"
	"github.com/iliyamo/bean-counter/internal/repository"
)

// memStore is an in-memory stand-in for the MySQL repositories used by
// the services.  Audit rows are counted, not stored.
type memStore struct {
	mu       sync.Mutex
	users    map[string]model.User
	invites  map[string]model.UserInvite
	roles    map[string]model.Role
	perms    map[string]model.Permission
	resets   map[string]model.PasswordReset
	audits   int
	sessions map[string]int // active sessions per user
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]model.User{},
		invites:  map[string]model.UserInvite{},
		roles:    map[string]model.Role{},
		perms:    map[string]model.Permission{},
		resets:   map[string]model.PasswordReset{},
		sessions: map[string]int{},
	}
}

type memUsers struct{ *memStore }

func (m memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == repository.NormalizeEmail(email) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m memUsers) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m memUsers) List(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m memUsers) UpdateWithLog(_ context.Context, u *model.User, _ repository.AuditMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before, ok := m.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Email = repository.NormalizeEmail(u.Email)
	if before.IsActive && !u.IsActive {
		m.sessions[u.ID] = 0
	}
	m.users[u.ID] = *u
	m.audits++
	return nil
}

func (m memUsers) DeleteWithLog(_ context.Context, id string, _ repository.AuditMeta) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	delete(m.users, id)
	m.audits++
	return u, nil
}

type memInvites struct{ *memStore }

func (m memInvites) GetByToken(_ context.Context, token string) (model.UserInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.Token == token {
			return inv, nil
		}
	}
	return model.UserInvite{}, repository.ErrNotFound
}

func (m memInvites) GetByID(_ context.Context, id string) (model.UserInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return model.UserInvite{}, repository.ErrNotFound
	}
	return inv, nil
}

func (m memInvites) EmailTaken(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m memInvites) List(context.Context) ([]model.UserInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.UserInvite
	for _, inv := range m.invites {
		out = append(out, inv)
	}
	return out, nil
}

func (m memInvites) CreateWithLog(_ context.Context, inv *model.UserInvite, _ repository.AuditMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.ID = uuid.NewString()
	inv.CreatedAt = time.Now().UTC()
	m.invites[inv.ID] = *inv
	m.audits++
	return nil
}

func (m memInvites) UpdateWithLog(_ context.Context, inv *model.UserInvite, _ repository.AuditMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.Email = repository.NormalizeEmail(inv.Email)
	m.invites[inv.ID] = *inv
	m.audits++
	return nil
}

func (m memInvites) DeleteWithLog(_ context.Context, id string, _ repository.AuditMeta) (model.UserInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return model.UserInvite{}, repository.ErrNotFound
	}
	delete(m.invites, id)
	m.audits++
	return inv, nil
}

// Accept mirrors the transactional repository: the invite delete and the
// user insert happen under one lock or not at all.
func (m memInvites) Accept(_ context.Context, inviteID string, u *model.User, _ repository.AuditMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invites[inviteID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	delete(m.invites, inviteID)
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	m.users[u.ID] = *u
	m.audits++
	return nil
}

type memRoles struct{ *memStore }

func (m memRoles) List(context.Context) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m memRoles) GetByID(_ context.Context, id string) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return r, nil
}

func (m memRoles) NameTaken(_ context.Context, name, exceptID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name && r.ID != exceptID {
			return true, nil
		}
	}
	return false, nil
}

func (m memRoles) Assignments(_ context.Context, roleID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users, invites := 0, 0
	for _, u := range m.users {
		if u.RoleID == roleID {
			users++
		}
	}
	for _, inv := range m.invites {
		if inv.RoleID == roleID {
			invites++
		}
	}
	return users, invites, nil
}

func (m memRoles) CreateWithLog(_ context.Context, r *model.Role, _ repository.AuditMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.NewString()
	m.roles[r.ID] = *r
	m.audits++
	return nil
}

func (m memRoles) UpdateWithLog(_ context.Context, r *model.Role, _ repository.AuditMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[r.ID] = *r
	m.audits++
	return nil
}

func (m memRoles) DeleteWithLog(_ context.Context, id string, _ repository.AuditMeta) (model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	delete(m.roles, id)
	m.audits++
	return r, nil
}

type memPerms struct{ *memStore }

func (m memPerms) List(context.Context) ([]model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Permission
	for _, p := range m.perms {
		out = append(out, p)
	}
	return out, nil
}

func (m memPerms) ByIDs(_ context.Context, ids []string) ([]model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Permission
	for _, id := range ids {
		if p, ok := m.perms[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memResets struct{ *memStore }

func (m memResets) Create(_ context.Context, userID, token string, exp time.Time) (model.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr := model.PasswordReset{ID: uuid.NewString(), UserID: userID, Token: token, ExpiresAt: exp}
	m.resets[pr.ID] = pr
	return pr, nil
}

func (m memResets) GetByToken(_ context.Context, token string) (model.PasswordReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pr := range m.resets {
		if pr.Token == token {
			return pr, nil
		}
	}
	return model.PasswordReset{}, repository.ErrNotFound
}

func (m memResets) Consume(_ context.Context, resetID, userID, hash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.resets[resetID]
	if !ok || pr.UsedAt != nil {
		return 0, repository.ErrNotFound
	}
	now := time.Now().UTC()
	pr.UsedAt = &now
	m.resets[resetID] = pr
	u := m.users[userID]
	u.PasswordHash = hash
	m.users[userID] = u
	n := int64(m.sessions[userID])
	m.sessions[userID] = 0
	return n, nil
}

type recordedMail struct {
	mu   sync.Mutex
	sent []queue.MailEvent
}

func (r *recordedMail) PublishMail(_ context.Context, ev queue.MailEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, ev)
	return nil
}

type recordedActivity struct {
	mu     sync.Mutex
	events []realtime.ActivityEvent
}

func (r *recordedActivity) Emit(_ context.Context, ev realtime.ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type memCategories struct {
	items map[string]model.Category
	inUse map[string]bool
}

func (m *memCategories) List(context.Context) ([]model.Category, error) {
	var out []model.Category
	for _, c := range m.items {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCategories) GetByID(_ context.Context, id string) (model.Category, error) {
	c, ok := m.items[id]
	if !ok {
		return model.Category{}, repository.ErrNotFound
	}
	return c, nil
}

func (m *memCategories) CreateWithLog(_ context.Context, c *model.Category, _ repository.AuditMeta) error {
	c.ID = uuid.NewString()
	m.items[c.ID] = *c
	return nil
}

func (m *memCategories) UpdateWithLog(_ context.Context, c *model.Category, _ repository.AuditMeta) error {
	if _, ok := m.items[c.ID]; !ok {
		return repository.ErrNotFound
	}
	m.items[c.ID] = *c
	return nil
}

func (m *memCategories) DeleteWithLog(_ context.Context, id string, _ repository.AuditMeta) (model.Category, error) {
	c, ok := m.items[id]
	if !ok {
		return model.Category{}, repository.ErrNotFound
	}
	if m.inUse[id] {
		return model.Category{}, repository.ErrConflict
	}
	delete(m.items, id)
	return c, nil
}

type memItems struct {
	items map[string]model.InventoryItem
	meta  repository.AuditMeta
}

func (m *memItems) List(_ context.Context, categoryID string) ([]model.InventoryItem, error) {
	var out []model.InventoryItem
	for _, it := range m.items {
		if categoryID == "" || it.CategoryID == categoryID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memItems) GetByID(_ context.Context, id string) (model.InventoryItem, error) {
	it, ok := m.items[id]
	if !ok {
		return model.InventoryItem{}, repository.ErrNotFound
	}
	return it, nil
}

func (m *memItems) CreateWithLog(_ context.Context, it *model.InventoryItem, meta repository.AuditMeta) error {
	it.ID = uuid.NewString()
	if it.Status == "" {
		it.Status = model.InventoryStatus(it.Quantity, it.MinimumStock)
	}
	m.items[it.ID] = *it
	m.meta = meta
	return nil
}

func (m *memItems) UpdateWithLog(_ context.Context, it *model.InventoryItem, meta repository.AuditMeta) error {
	if _, ok := m.items[it.ID]; !ok {
		return repository.ErrNotFound
	}
	if it.Status == "" {
		it.Status = model.InventoryStatus(it.Quantity, it.MinimumStock)
	}
	m.items[it.ID] = *it
	m.meta = meta
	return nil
}

func (m *memItems) DeleteWithLog(_ context.Context, id string, _ repository.AuditMeta) (model.InventoryItem, error) {
	it, ok := m.items[id]
	if !ok {
		return model.InventoryItem{}, repository.ErrNotFound
	}
	delete(m.items, id)
	return it, nil
}
