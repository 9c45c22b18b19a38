package router

import (
	"github.com/labstack/echo/v4"

	"github.com/autoseers/carseer/internal/handler"
	"github.com/autoseers/carseer/internal/middleware"
	"github.com/autoseers/carseer/internal/model"
)

// RegisterAdmin registers back-office endpoints under /v1/admin.  All
// routes require a verified token with the ADMIN role.
func RegisterAdmin(e *echo.Echo, h *handler.BookingHandler, v middleware.TokenVerifier, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.Auth(v),
		middleware.RequireRole(model.RoleAdmin),
		limiter,
	)
	g.PUT("/bookings/:id/state", h.SetState)
}
