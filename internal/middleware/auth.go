package middleware

import (
    "context"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/autoseers/carseer/internal/verify"
)

// Context keys set by Auth.
const (
    keyIdentity = "identity"
    keyUserID   = "user_id"
    keyRole     = "role"
    keyToken    = "token"
)

// TokenVerifier is the part of verify.Verifier the gateway needs.
type TokenVerifier interface {
    Verify(ctx context.Context, token string, wantIdentity bool) verify.Outcome
}

// Auth verifies the bearer token on every request, revocation included,
// and stores the identity for handlers.  Failures answer 401 with the
// outcome's message.
func Auth(v TokenVerifier) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := BearerToken(c)
            o := v.Verify(c.Request().Context(), raw, true)
            if !o.IsSuccess() {
                return c.JSON(http.StatusUnauthorized, echo.Map{"failure": o.Message()})
            }
            id := o.Identity()
            c.Set(keyIdentity, id)
            c.Set(keyUserID, id.Subject)
            c.Set(keyRole, id.Role())
            c.Set(keyToken, raw)
            return next(c)
        }
    }
}

// BearerToken returns the token from the Authorization header, or "" when
// the header is absent or uses another scheme.
func BearerToken(c echo.Context) string {
    auth := c.Request().Header.Get("Authorization")
    if !strings.HasPrefix(auth, "Bearer ") {
        return ""
    }
    return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// Subject is the verified subject, or "" outside Auth.
func Subject(c echo.Context) string {
    s, _ := c.Get(keyUserID).(string)
    return s
}

// Token is the raw bearer token Auth accepted.
func Token(c echo.Context) string {
    s, _ := c.Get(keyToken).(string)
    return s
}
