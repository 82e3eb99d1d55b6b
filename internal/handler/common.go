package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/logging"
	"github.com/iliyamo/bean-counter/internal/middleware"
	"github.com/iliyamo/bean-counter/internal/model"
	"github.com/iliyamo/bean-counter/internal/repository"
	"github.com/iliyamo/bean-counter/internal/service"
)

const requestTimeout = 5 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// bind decodes the request into dst and validates its tags.  Failures
// come back as a 400 *echo.HTTPError.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fieldMessage(verrs[0]))
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of " + fe.Param()
	}
	return field + " is invalid"
}

// ErrorHandler renders echo errors as {"error": message}.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	} else {
		lg := logging.With("handler")
		lg.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, echo.Map{"error": msg})
}

// fail maps a service or repository error to a JSON response.  Problem
// messages are shown as is; anything unrecognised is logged and hidden.
func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrEmailExists):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrExpired):
		status = http.StatusGone
	}
	var p *service.Problem
	if status == http.StatusInternalServerError || !errors.As(err, &p) {
		if status == http.StatusInternalServerError {
			lg := logging.With("handler")
			lg.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
			return c.JSON(status, echo.Map{"error": "internal error"})
		}
		return c.JSON(status, echo.Map{"error": http.StatusText(status)})
	}
	return c.JSON(status, echo.Map{"error": p.Msg})
}

// UserLookup loads a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

// actor builds the service actor from the principal the gate stored.
// The display name is best effort.
func actor(c echo.Context, users UserLookup) service.Actor {
	p, _ := middleware.PrincipalFrom(c)
	a := service.Actor{UserID: p.UserID, RoleID: p.RoleID}
	if users != nil && p.UserID != "" {
		if u, err := users.GetByID(c.Request().Context(), p.UserID); err == nil {
			a.Name = u.FullName
		}
	}
	return a
}

// can turns the token's permission claims into the map pages render
// buttons from.  It never grants anything.  Tokens minted by a refresh
// may carry no claims; the stored set is used then.
func can(c echo.Context) map[string]bool {
	p, _ := middleware.PrincipalFrom(c)
	keys := p.Hint
	if len(keys) == 0 {
		keys = p.Permissions.Keys()
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out
}

func timeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
