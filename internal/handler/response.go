package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
)

// dbTimeout bounds each storage step.
const dbTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

func data(c echo.Context, status int, v any) error {
	return c.JSON(status, echo.Map{"data": v})
}

func failure(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"failure": msg})
}

// statusOf maps the error taxonomy onto HTTP.  Not-found wins over
// integrity so a dangling vehicle link reads as "no vehicle".
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, apperr.ErrCollaboratorUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes err as a failure body.  Server-side errors are logged.
func fail(c echo.Context, log zerolog.Logger, err error) error {
	status, msg := statusOf(err)
	switch {
	case status >= http.StatusInternalServerError:
		log.Error().Err(err).Str("route", c.Path()).Msg("request failed")
	case errors.Is(err, apperr.ErrDataIntegrity):
		log.Warn().Err(err).Str("route", c.Path()).Msg("data integrity violation")
	}
	return failure(c, status, msg)
}
