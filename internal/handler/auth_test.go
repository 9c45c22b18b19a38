package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoseers/carseer/internal/config"
	"github.com/autoseers/carseer/internal/model"
)

type authFixture struct {
	users    *fakeUsers
	tokens   *fakeTokens
	sessions *fakeSessions
	h        *AuthHandler
	e        *echo.Echo
}

func newAuthFixture() *authFixture {
	f := &authFixture{users: newFakeUsers(), tokens: newFakeTokens(), sessions: &fakeSessions{}}
	cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 30, BcryptCost: 4}
	f.h = NewAuthHandler(cfg, f.users, f.tokens, f.sessions, nop)
	f.e = echo.New()
	f.e.POST("/register", f.h.Register)
	f.e.POST("/login", f.h.Login)
	f.e.POST("/refresh", f.h.Refresh)
	return f
}

func (f *authFixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authResp {
	t.Helper()
	var out authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func failureOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	s, _ := body["failure"].(string)
	return s
}

func TestRegisterIssuesCustomerTokens(t *testing.T) {
	f := newAuthFixture()
	rec := f.post("/register", `{"email":" Ann@Example.com ","password":"hunter2hunter2"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	out := decodeAuth(t, rec)
	assert.Equal(t, "ann@example.com", out.User.Email)
	assert.Equal(t, model.RoleCustomer, out.User.Role)
	assert.NotEmpty(t, out.Refresh.Token)
	assert.Len(t, f.tokens.owner, 1)

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(out.Access.Token, claims, func(*jwt.Token) (any, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, claims["sub"])
	assert.Equal(t, model.RoleCustomer, claims["role"])
}

func TestRegisterRejectsDuplicatesAndShortPasswords(t *testing.T) {
	f := newAuthFixture()
	require.Equal(t, http.StatusCreated, f.post("/register", `{"email":"a@b.co","password":"longenough"}`).Code)

	rec := f.post("/register", `{"email":"a@b.co","password":"longenough"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.post("/register", `{"email":"c@b.co","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.post("/register", `{"email":"","password":"longenough"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, failureOf(t, rec), "email/password required")
}

func TestLogin(t *testing.T) {
	f := newAuthFixture()
	require.Equal(t, http.StatusCreated, f.post("/register", `{"email":"a@b.co","password":"longenough"}`).Code)

	assert.Equal(t, http.StatusOK, f.post("/login", `{"email":"A@B.co","password":"longenough"}`).Code)

	rec := f.post("/login", `{"email":"a@b.co","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", failureOf(t, rec))

	assert.Equal(t, http.StatusUnauthorized, f.post("/login", `{"email":"nobody@b.co","password":"longenough"}`).Code)

	u := f.users.byID["user-1"]
	u.IsActive = false
	f.users.byID["user-1"] = u
	assert.Equal(t, http.StatusUnauthorized, f.post("/login", `{"email":"a@b.co","password":"longenough"}`).Code)
}

func TestRefreshRotatesOnce(t *testing.T) {
	f := newAuthFixture()
	first := decodeAuth(t, f.post("/register", `{"email":"a@b.co","password":"longenough"}`))

	rec := f.post("/refresh", `{"refresh_token":"`+first.Refresh.Token+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeAuth(t, rec)
	assert.NotEqual(t, first.Refresh.Token, second.Refresh.Token)

	rec = f.post("/refresh", `{"refresh_token":"`+first.Refresh.Token+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a rotated token cannot be replayed")

	assert.Equal(t, http.StatusOK, f.post("/refresh", `{"refresh_token":"`+second.Refresh.Token+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.post("/refresh", `{}`).Code)
}

func TestLogoutRevokesEverySession(t *testing.T) {
	f := newAuthFixture()
	rec := callJSON(t, http.MethodPost, "/logout", "/logout", "", f.h.Logout)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"user-1"}, f.sessions.revoked)
}
