package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"
)

// RequestObserver receives one call per finished request.
type RequestObserver interface {
    ObserveRequest(route, method string, status int, elapsed time.Duration)
}

// RequestLogger logs method, route, status and latency for every request
// and forwards the same numbers to obs when it is not nil.
func RequestLogger(log zerolog.Logger, obs RequestObserver) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err) // let echo write the response so the status is final
            }
            elapsed := time.Since(start)
            req, res := c.Request(), c.Response()

            ev := log.Info()
            if res.Status >= 500 {
                ev = log.Error().Err(err)
            }
            ev.Str("method", req.Method).
                Str("route", c.Path()).
                Str("path", req.URL.Path).
                Int("status", res.Status).
                Dur("latency", elapsed).
                Str("user_id", userID(c)).
                Msg("request")

            if obs != nil {
                obs.ObserveRequest(c.Path(), req.Method, res.Status, elapsed)
            }
            return nil
        }
    }
}
