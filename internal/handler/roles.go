package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/service"
)

type roleReq struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Description   string   `json:"description" validate:"max=255"`
	PermissionIDs []string `json:"permissionIds"`
}

type permissionOut struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Module    string `json:"module"`
	Action    string `json:"action"`
	Submodule string `json:"submodule,omitempty"`
}

type roleOut struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UsersCount  int             `json:"usersCount"`
	Permissions []permissionOut `json:"permissions"`
}

func permissionsOut(perms []model.Permission) []permissionOut {
	out := make([]permissionOut, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionOut{ID: p.ID, Key: rbac.KeyOf(p), Module: p.Module, Action: p.Action, Submodule: p.Submodule})
	}
	return out
}

func roleJSON(r model.Role) roleOut {
	return roleOut{ID: r.ID, Name: r.Name, Description: r.Description, UsersCount: r.UsersCount, Permissions: permissionsOut(r.Permissions)}
}

func rolesOut(roles []model.Role) []roleOut {
	out := make([]roleOut, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleJSON(r))
	}
	return out
}

// ListPermissions returns the permission catalog.  The route is cached.
func (h *DashboardHandler) ListPermissions(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	perms, err := h.Roles.ListPermissions(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, permissionsOut(perms))
}

func (h *DashboardHandler) GetRole(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	role, err := h.Roles.GetRole(ctx, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, roleJSON(role))
}

func (h *DashboardHandler) CreateRole(c echo.Context) error {
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	role, err := h.Roles.CreateRole(ctx, h.actor(c), service.RoleInput{Name: req.Name, Description: req.Description, PermissionIDs: req.PermissionIDs})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, roleJSON(role))
}

func (h *DashboardHandler) UpdateRole(c echo.Context) error {
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	role, err := h.Roles.UpdateRole(ctx, h.actor(c), c.Param("id"), service.RoleInput{Name: req.Name, Description: req.Description, PermissionIDs: req.PermissionIDs})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, roleJSON(role))
}

// DeleteRole refuses the caller's own role and roles still assigned.
func (h *DashboardHandler) DeleteRole(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	if err := h.Roles.DeleteRole(ctx, h.actor(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
