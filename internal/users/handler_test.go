package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac/rbactest"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type handlerFixture struct {
	router  http.Handler
	tokens  *auth.TokenService
	viewer  string
	manager string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	graph := rbactest.New()
	graph.AddPermission(shared.PermViewUsers)
	graph.AddPermission(shared.PermManageUsers)
	viewer := graph.AddRole("viewer", shared.PermViewUsers)
	manager := graph.AddRole("manager", shared.PermViewUsers, shared.PermManageUsers)

	tokens, err := auth.NewTokenService("users-handler-secret-0123456789abcdef", time.Hour)
	require.NoError(t, err)
	guard := rbac.NewGuard(tokens, rbac.NewResolver(graph), nil, nil)

	store := newMemoryStore()
	store.seed("u1", "one@example.com", "r-user")
	svc := NewService(store, prefixHasher{}, nil, nil)

	r := chi.NewRouter()
	NewHandler(nil, svc, guard).MountRoutes(r)
	return &handlerFixture{router: r, tokens: tokens, viewer: viewer, manager: manager}
}

func (f *handlerFixture) call(t *testing.T, method, path, body, roleID string) (int, httpx.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if roleID != "" {
		tok, _, err := f.tokens.Issue(shared.Identity{UserID: "caller", RoleID: roleID})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHandlerPermissions(t *testing.T) {
	f := newHandlerFixture(t)
	body := `{"email":"new@example.com","password":"secret1","name":"New","roleId":"r-user"}`

	code, _ := f.call(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.call(t, http.MethodGet, "/", "", f.viewer)
	assert.Equal(t, http.StatusOK, code)

	code, env := f.call(t, http.MethodPost, "/", body, f.viewer)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied. Required permission: manage_users", env.Error)

	code, env = f.call(t, http.MethodPost, "/", body, f.manager)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "User created successfully", env.Message)
	assert.NotContains(t, mustJSON(t, env.Data), "hashed:")
}

func TestHandlerValidation(t *testing.T) {
	f := newHandlerFixture(t)

	code, env := f.call(t, http.MethodPost, "/", `{"email":"not-an-email","password":"p","name":"n","roleId":"r-user"}`, f.manager)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid email format", env.Error)

	code, env = f.call(t, http.MethodPost, "/", `{"email":"a@example.com"}`, f.manager)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email, password, name, and roleId are required", env.Error)

	code, env = f.call(t, http.MethodPut, "/u1", `{`, f.manager)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", env.Error)

	code, env = f.call(t, http.MethodGet, "/missing", "", f.viewer)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", env.Error)

	code, env = f.call(t, http.MethodDelete, "/u1", "", f.manager)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "User deleted successfully", env.Message)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
