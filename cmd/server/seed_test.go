package main

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/utils"
)

type seedPerms map[string]model.Permission

func (m seedPerms) Ensure(_ context.Context, p model.Permission) (model.Permission, error) {
	if got, ok := m[rbac.KeyOf(p)]; ok {
		return got, nil
	}
	p.ID = uuid.NewString()
	m[rbac.KeyOf(p)] = p
	return p, nil
}

type seedRolesStore map[string]model.Role

func (m seedRolesStore) GetByName(_ context.Context, name string) (model.Role, error) {
	r, ok := m[name]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return r, nil
}

func (m seedRolesStore) CreateWithLog(_ context.Context, r *model.Role, _ repository.AuditMeta) error {
	r.ID = uuid.NewString()
	m[r.Name] = *r
	return nil
}

func (m seedRolesStore) UpdateWithLog(_ context.Context, r *model.Role, _ repository.AuditMeta) error {
	m[r.Name] = *r
	return nil
}

type seedUsers map[string]model.User

func (m seedUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := m[email]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m seedUsers) CreateWithLog(_ context.Context, u *model.User, _ repository.AuditMeta) error {
	u.ID = uuid.NewString()
	m[u.Email] = *u
	return nil
}

func TestSeedIsIdempotent(t *testing.T) {
	perms, roles, users := seedPerms{}, seedRolesStore{}, seedUsers{}
	s := seeder{perms: perms, roles: roles, users: users, hash: utils.BcryptHasher{Cost: bcrypt.MinCost}}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.run(ctx, "Admin@Example.com", "Password123"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if len(perms) != 16 {
		t.Fatalf("permissions = %d, want 16", len(perms))
	}
	want := map[string]int{"USER": 2, "MODERATOR": 10, "ADMIN": 16}
	for name, n := range want {
		if got := len(roles[name].Permissions); got != n {
			t.Errorf("%s permissions = %d, want %d", name, got, n)
		}
	}
	set := rbac.NewSet(rbac.Keys(roles["MODERATOR"].Permissions))
	if set.Can("access-management:delete:roles") || !set.Can("access-management:read:users") || !set.Can("inventory:delete") {
		t.Errorf("moderator keys = %v", set.Keys())
	}

	if len(users) != 1 {
		t.Fatalf("users = %d, want 1", len(users))
	}
	admin := users["admin@example.com"]
	if admin.RoleID != roles["ADMIN"].ID || !admin.IsActive || !s.hash.Compare(admin.PasswordHash, "Password123") {
		t.Fatalf("admin = %+v", admin)
	}
}
