package middleware

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/platform/auth"
)

const panicStackSize = 4096

// Recovery turns a handler panic into a 500. The log line carries the caller
// and, on API routes, the session or submission being worked on. Answer
// payloads are never logged.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, panicStackSize)
				stack = stack[:runtime.Stack(stack, false)]

				ev := logger.Error().
					Str("request_id", requestID(c)).
					Str("method", c.Request().Method).
					Str("route", c.Path()).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack)
				if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
					ev = ev.Str("user_id", uid)
				}
				if path := c.Request().URL.Path; strings.HasPrefix(path, apiPrefix) {
					resource, id := resourceFromPath(path)
					ev = ev.Str("resource", resource).Str("resource_id", id)
				}
				ev.Msg("panic recovered")

				msg := "internal server error"
				if rid := requestID(c); rid != "" {
					msg = fmt.Sprintf("%s (request %s)", msg, rid)
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, msg)
			}()
			return next(c)
		}
	}
}
