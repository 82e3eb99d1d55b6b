package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/logging"
	"github.com/iliyamo/bean-counter/internal/metrics"
	"github.com/iliyamo/bean-counter/internal/middleware"
	"github.com/iliyamo/bean-counter/internal/service"
	"github.com/iliyamo/bean-counter/internal/session"
)

// AuthHandler bundles dependencies for the public auth endpoints.
type AuthHandler struct {
	Sessions  *session.Manager
	Access    *service.AccessService
	Passwords *service.PasswordService
}

func NewAuthHandler(m *session.Manager, a *service.AccessService, p *service.PasswordService) *AuthHandler {
	return &AuthHandler{Sessions: m, Access: a, Passwords: p}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
	ReturnTo string `json:"returnTo" form:"returnTo" query:"returnTo"`
}

type registerReq struct {
	Password    string `json:"password" form:"password" validate:"required,min=8"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
}

type forgotReq struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

type resetReq struct {
	Password string `json:"password" form:"password" validate:"required,min=8"`
}

func (h *AuthHandler) jar(c echo.Context) *middleware.EchoJar {
	return middleware.Jar(c, h.Sessions.Cookies())
}

// LoginPage describes the login form.  The edge gatekeeper has already
// sent logged-in visitors to the dashboard.
func (h *AuthHandler) LoginPage(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"page": "login", "returnTo": session.SafeReturnTo(c.QueryParam("returnTo"))})
}

// Login: verify credentials, open a session and set both cookies.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	g, err := h.Sessions.Login(ctx, h.jar(c), req.Email, req.Password)
	if err != nil {
		var ae *session.AuthError
		if errors.As(err, &ae) {
			metrics.Auth("login", ae.Kind.String())
			lg := logging.With("auth")
			lg.Info().Str("kind", ae.Kind.String()).Msg("login rejected")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": ae.Message})
		}
		metrics.Auth("login", "error")
		return fail(c, err)
	}
	metrics.Auth("login", "ok")
	lg := logging.With("auth")
	lg.Info().Str("user_id", g.UserID).Str("session_id", g.SessionID).Msg("login")
	return c.JSON(http.StatusOK, echo.Map{
		"redirect":    session.SafeReturnTo(req.ReturnTo),
		"userId":      g.UserID,
		"permissions": g.Permissions,
		"accessExp":   g.AccessExp,
	})
}

// Refresh redeems the refresh cookie and continues to returnTo, or to
// the login page when the session cannot be renewed.
func (h *AuthHandler) Refresh(c echo.Context) error {
	returnTo := session.SafeReturnTo(c.QueryParam("returnTo"))
	ctx, cancel := timeout(c)
	defer cancel()

	g, err := h.Sessions.Refresh(ctx, h.jar(c))
	if err != nil {
		kind := "error"
		if k, ok := session.KindOf(err); ok {
			kind = k.String()
		} else {
			lg := logging.With("auth")
			lg.Error().Err(err).Msg("refresh failed")
		}
		metrics.Auth("refresh", kind)
		return c.Redirect(http.StatusFound, session.LoginPath)
	}
	metrics.Auth("refresh", "ok")
	lg := logging.With("auth")
	lg.Debug().Str("user_id", g.UserID).Str("session_id", g.SessionID).Msg("refresh")
	return c.Redirect(http.StatusFound, returnTo)
}

// Logout revokes the session (or all of the user's sessions, per scope),
// clears the cookies and always ends on the login page.
func (h *AuthHandler) Logout(c echo.Context) error {
	var scope session.LogoutScope
	if q := c.QueryParam("scope"); q != "" {
		s, ok := session.ParseLogoutScope(q)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "scope must be session or all")
		}
		scope = s
	}
	ctx, cancel := timeout(c)
	defer cancel()

	revoked, err := h.Sessions.Logout(ctx, h.jar(c), scope)
	if err != nil {
		metrics.Auth("logout", "error")
		lg := logging.With("auth")
		lg.Error().Err(err).Msg("logout revoke failed")
	} else {
		metrics.Auth("logout", "ok")
		lg := logging.With("auth")
		lg.Info().Int64("revoked", revoked).Msg("logout")
	}
	return c.Redirect(http.StatusFound, session.LoginPath)
}

// RegisterPage shows the invite behind the token.
func (h *AuthHandler) RegisterPage(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	inv, err := h.Access.LookupInvite(ctx, c.Param("token"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"email":     inv.Email,
		"firstName": inv.FirstName,
		"lastName":  inv.LastName,
		"roleName":  inv.RoleName,
		"expiresAt": inv.ExpiresAt,
	})
}

// Register accepts an invite and creates the account.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	u, err := h.Access.AcceptInvite(ctx, c.Param("token"), service.AcceptInput{Password: req.Password, PhoneNumber: req.PhoneNumber})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": u.ID, "email": u.Email, "redirect": session.LoginPath})
}

// ForgotPassword answers the same way whether or not the email exists.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	if err := h.Passwords.ForgotPassword(ctx, req.Email); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "If the email is registered, a reset link has been sent."})
}

// ResetPassword sets a new password from a reset link.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()
	if err := h.Passwords.ResetPassword(ctx, c.Param("token"), req.Password); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Password updated.", "redirect": session.LoginPath})
}
