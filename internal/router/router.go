package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/config"
	"github.com/autoseers/carseer/internal/handler"
	"github.com/autoseers/carseer/internal/middleware"
	"github.com/autoseers/carseer/internal/model"
)

// Deps is everything the HTTP layer is built from.  Redis, DB, Cache,
// Metrics and MetricsHandler may be nil.
type Deps struct {
	Log            zerolog.Logger
	DB             handler.Pinger
	Redis          *redis.Client
	RateLimit      config.RateLimitConfig
	Cache          *middleware.ResponseCache
	Metrics        middleware.RequestObserver
	MetricsHandler http.Handler
	Verifier       middleware.TokenVerifier

	Auth     *handler.AuthHandler
	Account  *handler.AccountHandler
	Vehicles *handler.VehicleHandler
	Recalls  *handler.RecallHandler
	Bookings *handler.BookingHandler
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log, d.Metrics))

	limiter := middleware.NewLimiter(d.RateLimit, d.Redis, d.Log)
	if d.Cache == nil {
		d.Cache = middleware.NewResponseCache(config.CacheConfig{}, nil, d.Log)
	}

	RegisterRoutes(e, d)
	RegisterAuth(e, d.Auth, d.Verifier, limiter.PerIP("auth", d.RateLimit.Auth))
	RegisterVehicle(e, d, limiter)
	RegisterAdmin(e, d.Bookings, d.Verifier, limiter.PerUser("api", d.RateLimit.API))
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	if d.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(d.MetricsHandler))
	}
}

// RegisterAuth registers token issuance under /v1/auth and the account
// endpoints of the signed-in user.  Logout needs a verified token so it
// can end every session of its subject.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.TokenVerifier, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout, middleware.Auth(v))
}

// RegisterVehicle registers the privileged customer endpoints under /v1.
// Every request is verified again, revocation included.  Endpoints backed
// by the generative model draw from a separate, smaller bucket.
func RegisterVehicle(e *echo.Echo, d Deps, limiter *middleware.Limiter) {
	g := e.Group("/v1",
		middleware.Auth(d.Verifier),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
		limiter.PerUser("api", d.RateLimit.API),
	)
	modelLimit := limiter.PerUser("model", d.RateLimit.Model)

	g.POST("/profile", d.Account.CreateProfile)
	g.GET("/me", d.Account.Me)
	g.DELETE("/account", d.Account.Delete)

	g.POST("/vehicle/manual", d.Vehicles.ManualEntry)
	g.POST("/vehicle/report", d.Vehicles.UploadReport, modelLimit)
	g.GET("/home", d.Vehicles.Home)
	g.GET("/alerts", d.Vehicles.Alerts)
	g.POST("/parts/:id/repaired", d.Vehicles.MarkRepaired)
	// Cache hits are served before the model bucket is charged.
	g.GET("/recommendations", d.Vehicles.Recommendations, d.Cache.Middleware(), modelLimit)

	g.GET("/recalls", d.Recalls.List)
	g.POST("/recalls/complete", d.Recalls.Complete)

	g.POST("/bookings", d.Bookings.Request)
	g.GET("/bookings/:partId", d.Bookings.State)
}
