package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/platform/auth"
)

// Recovery turns a handler panic into a 500. The log line carries the route
// and, when known, the patient being handled, so a crash during admission
// can be matched to the queue entry it left behind.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var stack [4096]byte
				n := runtime.Stack(stack[:], false)
				rid, _ := c.Get("request_id").(string)

				evt := logger.Error()
				if pid := extractPatientID(c); pid != "" {
					evt = evt.Str("patient_id", pid)
				}
				evt.
					Str("request_id", rid).
					Str("user_id", auth.UserIDFromContext(c.Request().Context())).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(stack[:n])).
					Msg("panic recovered")

				if rid != "" {
					err = echo.NewHTTPError(http.StatusInternalServerError,
						fmt.Sprintf("internal server error (request %s)", rid))
					return
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
