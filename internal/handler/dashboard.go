package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/middleware"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/service"
	"github.com/iliyamo/bean-counter/internal/session"
)

// DashboardHandler serves the dashboard pages and their JSON actions.
// Every route is behind a gate, so a Principal is always on the context.
type DashboardHandler struct {
	Users   UserLookup
	Access  *service.AccessService
	Roles   *service.RoleService
	Catalog *service.CatalogService
}

func NewDashboardHandler(users UserLookup, a *service.AccessService, r *service.RoleService, cat *service.CatalogService) *DashboardHandler {
	if users == nil || a == nil || r == nil || cat == nil {
		panic("nil dependency passed to NewDashboardHandler")
	}
	return &DashboardHandler{Users: users, Access: a, Roles: r, Catalog: cat}
}

func (h *DashboardHandler) actor(c echo.Context) service.Actor { return actor(c, h.Users) }

// Home is the landing page after login.
func (h *DashboardHandler) Home(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	return c.JSON(http.StatusOK, echo.Map{"page": "dashboard", "userId": p.UserID, "can": can(c)})
}

// NoPermission is where page gates send callers they turn away.
func (h *DashboardHandler) NoPermission(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"page": "no-permission", "error": session.MsgPermissionDenied})
}

type profileResp struct {
	ID          string  `json:"id"`
	FullName    string  `json:"fullName"`
	Email       string  `json:"email"`
	RoleName    string  `json:"roleName"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	CreatedAt   string  `json:"createdAt"`
}

// Profile shows the current user.
func (h *DashboardHandler) Profile(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	ctx, cancel := timeout(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Redirect(http.StatusFound, session.LoginPath)
		}
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"page": "profile",
		"user": profileResp{
			ID: u.ID, FullName: u.FullName, Email: u.Email, RoleName: u.RoleName,
			PhoneNumber: u.PhoneNumber, CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"can": can(c),
	})
}

// UsersPage lists users and pending invites with the roles to pick from.
func (h *DashboardHandler) UsersPage(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	entries, err := h.Access.ListAccess(ctx)
	if err != nil {
		return fail(c, err)
	}
	roles, err := h.Roles.ListRoles(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"page": "users", "access": entries, "roles": rolesOut(roles), "can": can(c)})
}

// RolesPage lists roles and the permission catalog.
func (h *DashboardHandler) RolesPage(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	roles, err := h.Roles.ListRoles(ctx)
	if err != nil {
		return fail(c, err)
	}
	perms, err := h.Roles.ListPermissions(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"page": "roles", "roles": rolesOut(roles), "permissions": permissionsOut(perms), "can": can(c)})
}

// CategoryPage lists categories.
func (h *DashboardHandler) CategoryPage(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	cats, err := h.Catalog.ListCategories(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"page": "category", "categories": cats, "can": can(c)})
}

// InventoryPage lists items, optionally filtered by ?category=.
func (h *DashboardHandler) InventoryPage(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	items, err := h.Catalog.ListItems(ctx, c.QueryParam("category"))
	if err != nil {
		return fail(c, err)
	}
	cats, err := h.Catalog.ListCategories(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"page": "inventory", "items": items, "categories": cats, "can": can(c)})
}
