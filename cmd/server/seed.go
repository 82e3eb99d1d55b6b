package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/bean-counter/internal/config"
	"github.com/iliyamo/bean-counter/internal/logging"
	"github.com/iliyamo/bean-counter/internal/middleware"
	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/service"
	"github.com/iliyamo/bean-counter/internal/utils"
)

var crud = []string{"create", "read", "update", "delete"}

// permissionCatalog is every permission the dashboard checks.
func permissionCatalog() []model.Permission {
	var out []model.Permission
	for _, mod := range []struct{ module, sub string }{
		{service.ModuleInventory, ""},
		{service.ModuleCategory, ""},
		{service.ModuleAccess, service.SubUsers},
		{service.ModuleAccess, service.SubRoles},
	} {
		for _, action := range crud {
			out = append(out, model.Permission{Module: mod.module, Action: action, Submodule: mod.sub})
		}
	}
	return out
}

// roleSpec is a seeded role and the rule picking its permissions.
type roleSpec struct {
	Name        string
	Description string
	Grants      func(p model.Permission) bool
}

func seedRoles() []roleSpec {
	return []roleSpec{
		{"USER", "Read-only access to the catalog", func(p model.Permission) bool {
			return p.Module != service.ModuleAccess && p.Action == "read"
		}},
		{"MODERATOR", "Manages the catalog", func(p model.Permission) bool {
			return p.Module != service.ModuleAccess || p.Action == "read"
		}},
		{"ADMIN", "Full access", func(model.Permission) bool { return true }},
	}
}

func seedCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the permission catalog, default roles and an admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			s := seeder{
				perms: repository.NewPermissionRepo(db),
				roles: repository.NewRoleRepo(db),
				users: repository.NewUserRepo(db),
				hash:  utils.BcryptHasher{Cost: cfg.BcryptCost},
			}
			if err := s.run(cmd.Context(), email, password); err != nil {
				return err
			}
			if rdb := config.NewRedisClient(cfg.Redis); rdb != nil {
				defer rdb.Close()
				if _, err := middleware.PurgeCache(cmd.Context(), rdb, cfg.Cache.Prefix); err != nil {
					logging.Warn().Err(err).Msg("response cache not purged")
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seed complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "admin-email", "admin@beancounter.local", "email of the seeded admin")
	cmd.Flags().StringVar(&password, "admin-password", "Password123", "password of the seeded admin")
	return cmd
}

type seeder struct {
	perms interface {
		Ensure(ctx context.Context, p model.Permission) (model.Permission, error)
	}
	roles interface {
		GetByName(ctx context.Context, name string) (model.Role, error)
		CreateWithLog(ctx context.Context, role *model.Role, meta repository.AuditMeta) error
		UpdateWithLog(ctx context.Context, role *model.Role, meta repository.AuditMeta) error
	}
	users interface {
		GetByEmail(ctx context.Context, email string) (model.User, error)
		CreateWithLog(ctx context.Context, u *model.User, meta repository.AuditMeta) error
	}
	hash utils.Hasher
}

// run is idempotent: existing roles get their permission set reset to
// the seeded one and an existing admin user is left alone.
func (s seeder) run(ctx context.Context, email, password string) error {
	log := logging.With("seed")
	var catalog []model.Permission
	for _, p := range permissionCatalog() {
		stored, err := s.perms.Ensure(ctx, p)
		if err != nil {
			return fmt.Errorf("ensure permission %s: %w", rbac.KeyOf(p), err)
		}
		catalog = append(catalog, stored)
	}

	meta := repository.AuditMeta{Module: service.ModuleAccess, Submodule: service.SubRoles}
	var adminRole model.Role
	for _, spec := range seedRoles() {
		var perms []model.Permission
		for _, p := range catalog {
			if spec.Grants(p) {
				perms = append(perms, p)
			}
		}
		role, err := s.roles.GetByName(ctx, spec.Name)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			role = model.Role{Name: spec.Name, Description: spec.Description, Permissions: perms}
			err = s.roles.CreateWithLog(ctx, &role, meta)
		case err == nil:
			role.Permissions = perms
			err = s.roles.UpdateWithLog(ctx, &role, meta)
		}
		if err != nil {
			return fmt.Errorf("seed role %s: %w", spec.Name, err)
		}
		log.Info().Str("role", role.Name).Int("permissions", len(perms)).Msg("role seeded")
		if spec.Name == "ADMIN" {
			adminRole = role
		}
	}

	email = repository.NormalizeEmail(email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		log.Info().Str("email", email).Msg("admin exists")
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	hash, err := s.hash.Hash(password)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	admin := model.User{
		Email: email, PasswordHash: hash, FirstName: "System", LastName: "Admin", FullName: "System Admin",
		RoleID: adminRole.ID, IsActive: true, EmailVerifiedAt: &now,
	}
	if err := s.users.CreateWithLog(ctx, &admin, repository.AuditMeta{Module: service.ModuleAccess, Submodule: service.SubUsers}); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info().Str("email", email).Msg("admin created")
	return nil
}
