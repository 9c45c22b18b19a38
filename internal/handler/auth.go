package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/apperr"
	"github.com/autoseers/carseer/internal/config"
	"github.com/autoseers/carseer/internal/identity"
	"github.com/autoseers/carseer/internal/middleware"
	"github.com/autoseers/carseer/internal/model"
)

// UserStore is the account storage the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, role string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	Rotate(ctx context.Context, userID, oldHash, newHash string, exp time.Time) error
}

// SessionRevoker ends every session of a subject.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, subject string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Tokens   TokenStore
	Sessions SessionRevoker
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, s SessionRevoker, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Sessions: s, log: log, now: time.Now}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (req *credentialsReq) normalize() error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return apperr.Invalid("email/password required")
	}
	return nil
}

// Register creates a CUSTOMER account and returns tokens immediately.
// Admin accounts are provisioned out of band.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid body")
	}
	if err := req.normalize(); err != nil {
		return fail(c, h.log, err)
	}
	hash, err := identity.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return fail(c, h.log, err)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.Create(ctx, req.Email, hash, model.RoleCustomer)
	if err != nil {
		return fail(c, h.log, err)
	}
	resp, refreshHash, err := h.issue(u)
	if err != nil {
		return fail(c, h.log, err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, refreshHash, resp.Refresh.Expires); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid body")
	}
	if err := req.normalize(); err != nil {
		return fail(c, h.log, err)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return failure(c, http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return fail(c, h.log, err)
	}
	if !u.IsActive || !identity.VerifyPassword(u.PasswordHash, req.Password) {
		return failure(c, http.StatusUnauthorized, "invalid credentials")
	}
	resp, refreshHash, err := h.issue(u)
	if err != nil {
		return fail(c, h.log, err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, refreshHash, resp.Refresh.Expires); err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued in the same transaction.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return failure(c, http.StatusBadRequest, "refresh_token required")
	}
	oldHash := identity.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := dbCtx(c)
	defer cancel()
	userID, err := h.Tokens.ValidateRefresh(ctx, oldHash)
	if errors.Is(err, apperr.ErrNotFound) {
		return failure(c, http.StatusUnauthorized, "invalid refresh")
	}
	if err != nil {
		return fail(c, h.log, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && !u.IsActive) {
		return failure(c, http.StatusUnauthorized, "invalid refresh")
	}
	if err != nil {
		return fail(c, h.log, err)
	}
	resp, newHash, err := h.issue(u)
	if err != nil {
		return fail(c, h.log, err)
	}
	err = h.Tokens.Rotate(ctx, u.ID, oldHash, newHash, resp.Refresh.Expires)
	if errors.Is(err, apperr.ErrNotFound) {
		return failure(c, http.StatusUnauthorized, "invalid refresh")
	}
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout ends every session of the caller: refresh tokens are revoked and
// access tokens issued so far stop verifying.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()
	if err := h.Sessions.RevokeSessions(ctx, middleware.Subject(c)); err != nil {
		return fail(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// issue signs an access token and mints a refresh token for u.  The hash
// of the refresh token is returned for storage.
func (h *AuthHandler) issue(u model.User) (authResp, string, error) {
	now := h.now()
	access, err := identity.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin, now)
	if err != nil {
		return authResp{}, "", err
	}
	refresh, err := identity.NewRefreshToken(h.Cfg.RefreshTTLDays, now)
	if err != nil {
		return authResp{}, "", err
	}
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, identity.HashRefreshRaw(refresh.Raw), nil
}
