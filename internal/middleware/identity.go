package middleware

import "github.com/labstack/echo/v4"

// userID returns the authenticated subject for keying rate limits and
// cached responses.  Unauthenticated requests share the "guest" key.
func userID(c echo.Context) string {
    if s := Subject(c); s != "" {
        return s
    }
    return "guest"
}
