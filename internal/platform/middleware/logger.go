package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/auth"
)

// Logger writes one line per request. Health checks from the orchestrator
// log at debug so they do not drown out queue traffic.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			status := c.Response().Status
			evt := logger.Info()
			switch {
			case err != nil:
				evt = logger.Error().Err(err)
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
					if he.Code < 500 {
						evt = logger.Warn().Err(err)
					}
				}
			case strings.HasPrefix(req.URL.Path, "/health"):
				evt = logger.Debug()
			}

			if pid := extractPatientID(c); pid != "" {
				evt = evt.Str("patient_id", pid)
			}
			evt.
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(req.Context())).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
