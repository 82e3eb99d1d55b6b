package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/realtime"
	"github.com/iliyamo/bean-counter/internal/repository"
)

// RoleStore is the role persistence used by RoleService.
type RoleStore interface {
	List(ctx context.Context) ([]model.Role, error)
	GetByID(ctx context.Context, id string) (model.Role, error)
	NameTaken(ctx context.Context, name, exceptID string) (bool, error)
	Assignments(ctx context.Context, roleID string) (users, invites int, err error)
	CreateWithLog(ctx context.Context, role *model.Role, meta repository.AuditMeta) error
	UpdateWithLog(ctx context.Context, role *model.Role, meta repository.AuditMeta) error
	DeleteWithLog(ctx context.Context, id string, meta repository.AuditMeta) (model.Role, error)
}

// PermissionCatalog reads the permission catalog.
type PermissionCatalog interface {
	List(ctx context.Context) ([]model.Permission, error)
	ByIDs(ctx context.Context, ids []string) ([]model.Permission, error)
}

// RoleInput is the role form.
type RoleInput struct {
	Name          string
	Description   string
	PermissionIDs []string
}

// RoleService manages roles and their permission sets.
type RoleService struct {
	Roles       RoleStore
	Permissions PermissionCatalog
	Activity    realtime.Emitter
}

func (s *RoleService) ListRoles(ctx context.Context) ([]model.Role, error) { return s.Roles.List(ctx) }

func (s *RoleService) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	return s.Permissions.List(ctx)
}

func (s *RoleService) GetRole(ctx context.Context, id string) (model.Role, error) {
	role, err := s.Roles.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Role{}, problem(repository.ErrNotFound, "role not found")
	}
	return role, err
}

// permissions resolves ids to catalog rows.  Duplicates collapse; an id
// outside the catalog is invalid input.
func (s *RoleService) permissions(ctx context.Context, ids []string) ([]model.Permission, error) {
	seen := map[string]bool{}
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" && !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	perms, err := s.Permissions.ByIDs(ctx, uniq)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(uniq) {
		return nil, problem(ErrInvalidInput, "unknown permission id")
	}
	return perms, nil
}

func (s *RoleService) validate(ctx context.Context, in RoleInput, exceptID string) (string, []model.Permission, error) {
	name := strings.TrimSpace(in.Name)
	if err := required("name", name); err != nil {
		return "", nil, err
	}
	taken, err := s.Roles.NameTaken(ctx, name, exceptID)
	if err != nil {
		return "", nil, err
	}
	if taken {
		return "", nil, problem(repository.ErrConflict, "a role named %q already exists", name)
	}
	perms, err := s.permissions(ctx, in.PermissionIDs)
	return name, perms, err
}

// CreateRole creates a role with the given permissions.
func (s *RoleService) CreateRole(ctx context.Context, actor Actor, in RoleInput) (model.Role, error) {
	name, perms, err := s.validate(ctx, in, "")
	if err != nil {
		return model.Role{}, err
	}
	role := model.Role{Name: name, Description: strings.TrimSpace(in.Description), Permissions: perms}
	if err := s.Roles.CreateWithLog(ctx, &role, actor.meta(ModuleAccess, SubRoles)); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Role{}, problem(repository.ErrConflict, "a role named %q already exists", name)
		}
		return model.Role{}, err
	}
	emit(ctx, s.Activity, actor, repository.ActionCreate, ModuleAccess, SubRoles, role.ID)
	return role, nil
}

// UpdateRole replaces name, description and the whole permission set.
func (s *RoleService) UpdateRole(ctx context.Context, actor Actor, id string, in RoleInput) (model.Role, error) {
	if _, err := s.GetRole(ctx, id); err != nil {
		return model.Role{}, err
	}
	name, perms, err := s.validate(ctx, in, id)
	if err != nil {
		return model.Role{}, err
	}
	role := model.Role{ID: id, Name: name, Description: strings.TrimSpace(in.Description), Permissions: perms}
	if err := s.Roles.UpdateWithLog(ctx, &role, actor.meta(ModuleAccess, SubRoles)); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Role{}, problem(repository.ErrConflict, "a role named %q already exists", name)
		}
		return model.Role{}, err
	}
	emit(ctx, s.Activity, actor, repository.ActionUpdate, ModuleAccess, SubRoles, role.ID)
	return role, nil
}

// DeleteRole deletes an unassigned role.  The actor's own role can never
// be deleted, whoever else holds it.
func (s *RoleService) DeleteRole(ctx context.Context, actor Actor, id string) error {
	if id == actor.RoleID {
		return problem(repository.ErrConflict, "you cannot delete the role you are assigned to")
	}
	if _, err := s.GetRole(ctx, id); err != nil {
		return err
	}
	users, invites, err := s.Roles.Assignments(ctx, id)
	if err != nil {
		return err
	}
	if users > 0 || invites > 0 {
		return problem(repository.ErrConflict, "role is assigned to %d user(s) and %d pending invite(s)", users, invites)
	}
	if _, err := s.Roles.DeleteWithLog(ctx, id, actor.meta(ModuleAccess, SubRoles)); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return problem(repository.ErrConflict, "role was assigned while deleting it")
		}
		return err
	}
	emit(ctx, s.Activity, actor, repository.ActionDelete, ModuleAccess, SubRoles, id)
	return nil
}
