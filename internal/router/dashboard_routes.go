package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/bean-counter/internal/config"
	"github.com/iliyamo/bean-counter/internal/handler"
	"github.com/iliyamo/bean-counter/internal/middleware"
	"github.com/iliyamo/bean-counter/internal/rbac"
	"github.com/iliyamo/bean-counter/internal/service"
	"github.com/iliyamo/bean-counter/internal/session"
)

// Permission keys guarding the dashboard.
var (
	keyInventoryRead   = rbac.Key(service.ModuleInventory, "read", "")
	keyInventoryCreate = rbac.Key(service.ModuleInventory, "create", "")
	keyInventoryUpdate = rbac.Key(service.ModuleInventory, "update", "")
	keyInventoryDelete = rbac.Key(service.ModuleInventory, "delete", "")

	keyCategoryRead   = rbac.Key(service.ModuleCategory, "read", "")
	keyCategoryCreate = rbac.Key(service.ModuleCategory, "create", "")
	keyCategoryUpdate = rbac.Key(service.ModuleCategory, "update", "")
	keyCategoryDelete = rbac.Key(service.ModuleCategory, "delete", "")

	keyUsersRead   = rbac.Key(service.ModuleAccess, "read", service.SubUsers)
	keyUsersCreate = rbac.Key(service.ModuleAccess, "create", service.SubUsers)
	keyUsersUpdate = rbac.Key(service.ModuleAccess, "update", service.SubUsers)
	keyUsersDelete = rbac.Key(service.ModuleAccess, "delete", service.SubUsers)

	keyRolesRead   = rbac.Key(service.ModuleAccess, "read", service.SubRoles)
	keyRolesCreate = rbac.Key(service.ModuleAccess, "create", service.SubRoles)
	keyRolesUpdate = rbac.Key(service.ModuleAccess, "update", service.SubRoles)
	keyRolesDelete = rbac.Key(service.ModuleAccess, "delete", service.SubRoles)
)

// RegisterDashboard registers the dashboard pages and the JSON actions
// under /dashboard/api.  The edge gatekeeper runs before all of them;
// pages redirect on a failed permission check, actions answer 403.
func RegisterDashboard(e *echo.Echo, d *handler.DashboardHandler, act *handler.ActivityHandler, gate *session.Gate, cache config.CacheConfig, rdb *redis.Client) {
	page := func(key string) echo.MiddlewareFunc { return middleware.RequirePagePermission(gate, key) }
	action := func(key string) echo.MiddlewareFunc { return middleware.RequirePermission(gate, key) }
	login := middleware.RequireLogin(gate)

	// ---- Pages ----
	p := e.Group(session.DashboardPath)
	p.GET("", d.Home, login)
	p.GET("/profile", d.Profile, login)
	p.GET("/no-permission", d.NoPermission)
	p.GET("/inventory", d.InventoryPage, page(keyInventoryRead))
	p.GET("/category", d.CategoryPage, page(keyCategoryRead))
	p.GET("/access-management/users", d.UsersPage, page(keyUsersRead))
	p.GET("/access-management/roles", d.RolesPage, page(keyRolesRead))

	// ---- Actions ----
	g := e.Group(session.DashboardPath + "/api")
	g.GET("/activity", act.Stream, login)

	g.POST("/users/invite", d.InviteUser, action(keyUsersCreate))
	g.PUT("/users/:id", d.EditUser, action(keyUsersUpdate))
	g.DELETE("/users/:id", d.DeleteAccess, action(keyUsersDelete))

	g.GET("/permissions", d.ListPermissions, action(keyRolesRead), middleware.NewRedisCache(cache, rdb))
	g.GET("/roles/:id", d.GetRole, action(keyRolesRead))
	g.POST("/roles", d.CreateRole, action(keyRolesCreate))
	g.PUT("/roles/:id", d.UpdateRole, action(keyRolesUpdate))
	g.DELETE("/roles/:id", d.DeleteRole, action(keyRolesDelete))

	g.GET("/categories", d.ListCategories, action(keyCategoryRead))
	g.GET("/categories/:id", d.GetCategory, action(keyCategoryRead))
	g.POST("/categories", d.CreateCategory, action(keyCategoryCreate))
	g.PUT("/categories/:id", d.UpdateCategory, action(keyCategoryUpdate))
	g.DELETE("/categories/:id", d.DeleteCategory, action(keyCategoryDelete))

	g.GET("/inventory", d.ListItems, action(keyInventoryRead))
	g.GET("/inventory/:id", d.GetItem, action(keyInventoryRead))
	g.POST("/inventory", d.CreateItem, action(keyInventoryCreate))
	g.PUT("/inventory/:id", d.UpdateItem, action(keyInventoryUpdate))
	g.DELETE("/inventory/:id", d.DeleteItem, action(keyInventoryDelete))
}
