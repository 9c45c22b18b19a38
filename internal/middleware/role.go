package middleware // middleware provides shared request processing for handlers

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// RequireRole enforces that the authenticated user holds one of roles.  It
// must run after Auth, which stores the role claim in the context.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get(keyRole).(string)
            if !ok || !allowed[role] {
                return c.JSON(http.StatusForbidden, echo.Map{"failure": "forbidden"})
            }
            return next(c)
        }
    }
}
