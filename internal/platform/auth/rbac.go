package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles carried in the token's roles claim.
const (
	RoleAdmin     = "admin"
	RolePhysician = "physician"
	RoleNurse     = "nurse"
	RolePatient   = "patient"
)

// ClinicianRoles may work the review queue.
var ClinicianRoles = []string{RolePhysician, RoleNurse}

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admins pass every check. A request with no identity
// at all is rejected as unauthenticated rather than forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	want := strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if UserIDFromContext(ctx) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if hasAnyRole(ctx, roles) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("required role: %s", want))
		}
	}
}

// RequireClinician admits physicians and nurses.
func RequireClinician() echo.MiddlewareFunc {
	return RequireRole(ClinicianRoles...)
}

// IsClinician reports whether the caller may see other patients' intakes.
func IsClinician(ctx context.Context) bool {
	return hasAnyRole(ctx, ClinicianRoles)
}

// PatientScope returns the patient id a request is confined to. Admins are
// unscoped and get "".
func PatientScope(ctx context.Context) string {
	if HasRole(ctx, RoleAdmin) {
		return ""
	}
	return UserIDFromContext(ctx)
}

func hasAnyRole(ctx context.Context, roles []string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}
