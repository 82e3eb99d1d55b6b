package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/service"
)

type inviteReq struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	RoleID    string `json:"roleId" validate:"required"`
}

type editUserReq struct {
	Email    string `json:"email" validate:"required,email"`
	RoleID   string `json:"roleId" validate:"required"`
	IsActive *bool  `json:"isActive"`
}

// InviteUser creates a pending invite and queues the invitation mail.
func (h *DashboardHandler) InviteUser(c echo.Context) error {
	var req inviteReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	inv, err := h.Access.InviteUser(ctx, h.actor(c), service.InviteInput{
		Email: req.Email, FirstName: req.FirstName, LastName: req.LastName, RoleID: req.RoleID,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": inv.ID, "email": inv.Email, "expiresAt": inv.ExpiresAt})
}

// EditUser updates a user, or the pending invite with the same id.
func (h *DashboardHandler) EditUser(c echo.Context) error {
	var req editUserReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	entry, err := h.Access.EditUser(ctx, h.actor(c), c.Param("id"), service.EditInput{
		Email: req.Email, RoleID: req.RoleID, IsActive: req.IsActive,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// DeleteAccess deletes a user or withdraws an invite; ?source=USER|INVITE.
func (h *DashboardHandler) DeleteAccess(c echo.Context) error {
	source := c.QueryParam("source")
	if source == "" {
		source = service.SourceUser
	}
	ctx, cancel := timeout(c)
	defer cancel()
	if err := h.Access.DeleteAccess(ctx, h.actor(c), c.Param("id"), source); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
