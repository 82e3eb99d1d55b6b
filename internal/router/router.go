package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/bean-counter/internal/config"
	"github.com/iliyamo/bean-counter/internal/handler"
	"github.com/iliyamo/bean-counter/internal/metrics"
	"github.com/iliyamo/bean-counter/internal/middleware"
	"github.com/iliyamo/bean-counter/internal/session"
)

// RegisterRoutes registers routes that need no session: health and
// Prometheus metrics.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers login, logout, refresh, invite registration and
// the password reset flow.  Credential endpoints sit behind the token
// bucket.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, rl config.RateLimitConfig, rdb *redis.Client) {
	limit := middleware.NewTokenBucket(rl, rdb)

	e.GET(session.LoginPath, a.LoginPage)
	e.POST(session.LoginPath, a.Login, limit)
	e.POST("/logout", a.Logout)
	e.GET(session.RefreshPath, a.Refresh)

	e.GET("/register/:token", a.RegisterPage)
	e.POST("/register/:token", a.Register, limit)

	e.POST("/forgot-password", a.ForgotPassword, limit)
	e.POST("/reset-password/:token", a.ResetPassword, limit)
}
