package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bean-counter/internal/logging"
)

// RequestLogger writes one zerolog line per request.  It expects echo's
// RequestID middleware to run first.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			res := c.Response()
			log := logging.With("http")
			ev := log.Info()
			if res.Status >= 500 {
				ev = log.Error().Err(err)
			}
			ev.Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Str("route", c.Path()).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Str("user_id", userID(c)).
				Msg("request")
			return nil
		}
	}
}
