package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// headerAuth trusts an X-User header; enough to reach the guarded routes.
type headerAuth struct{}

func (headerAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User")
		if userID == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	svc, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandler(nil, svc, headerAuth{}).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body, user string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHandleLogin(t *testing.T) {
	h := newTestRouter(t)

	rec, env := do(t, h, http.MethodPost, "/login", `{"email":"superadmin@example.com","password":"superadmin123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Login successful", env.Message)
	var session struct {
		Token string `json:"token"`
		User  struct {
			Email        string `json:"email"`
			PasswordHash string `json:"passwordHash"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "superadmin@example.com", session.User.Email)
	assert.NotContains(t, string(env.Data), "$2a$", "hash must not leak")

	rec, env = do(t, h, http.MethodPost, "/login", `{"email":"superadmin@example.com","password":"bad"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", env.Error)

	rec, env = do(t, h, http.MethodPost, "/login", `{"email":"gone@example.com","password":"superadmin123"}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "User account is deactivated", env.Error)

	rec, env = do(t, h, http.MethodPost, "/login", `{`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email and password are required", env.Error)
}

func TestHandleMeAndRefresh(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, h, http.MethodGet, "/me", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile Profile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, []string{shared.PermManageUsers}, profile.Permissions)

	rec, env = do(t, h, http.MethodPost, "/refresh", "", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Token refreshed successfully", env.Message)

	rec, env = do(t, h, http.MethodGet, "/me", "", "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", env.Error)
}
