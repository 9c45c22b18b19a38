package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/middleware"
	"github.com/autoseers/carseer/internal/model"
	"github.com/autoseers/carseer/internal/verify"
)

// ProfileStore reads and names accounts.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
	SetName(ctx context.Context, id, name string) error
}

// AccountDeleter is the verifier's deletion flow.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, token string) verify.Outcome
}

// AccountHandler serves the caller's own account.
type AccountHandler struct {
	Users    ProfileStore
	Accounts AccountDeleter
	log      zerolog.Logger
}

func NewAccountHandler(users ProfileStore, accounts AccountDeleter, log zerolog.Logger) *AccountHandler {
	return &AccountHandler{Users: users, Accounts: accounts, log: log}
}

type profileReq struct {
	Name string `json:"name"`
}

type meResp struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	VehicleLinked bool   `json:"vehicle_linked"`
}

// CreateProfile sets the caller's display name.
func (h *AccountHandler) CreateProfile(c echo.Context) error {
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return failure(c, http.StatusBadRequest, "name must be 1-100 characters")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Users.SetName(ctx, middleware.Subject(c), name); err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusOK, echo.Map{"name": name})
}

// Me returns the caller's account.
func (h *AccountHandler) Me(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, middleware.Subject(c))
	if err != nil {
		return fail(c, h.log, err)
	}
	return data(c, http.StatusOK, meResp{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		VehicleLinked: u.Vehicle.Linked(),
	})
}

// Delete removes the caller's account.  The token is verified again,
// revocation included, before anything is deleted.
func (h *AccountHandler) Delete(c echo.Context) error {
	o := h.Accounts.DeleteAccount(c.Request().Context(), middleware.Token(c))
	switch o.Tag() {
	case verify.TagAccountDeleted:
		return data(c, http.StatusOK, echo.Map{"message": o.Message(), "subject": o.Subject()})
	case verify.TagFailure:
		if o.Kind() == verify.AccountDeletionError {
			return failure(c, http.StatusInternalServerError, o.Message())
		}
		return failure(c, http.StatusUnauthorized, o.Message())
	}
	return failure(c, http.StatusInternalServerError, "unexpected verification outcome")
}
