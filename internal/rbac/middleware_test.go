package rbac_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac/rbactest"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	_ "github.com/odyssey-erp/odyssey-iam/testing"
)

const secret = "guard-test-secret-0123456789abcdef0123"

type decisionLog struct {
	mu      sync.Mutex
	entries []string
}

func (d *decisionLog) ObserveDecision(mode, outcome string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, mode+":"+outcome)
}

type guardFixture struct {
	store     *rbactest.Store
	tokens    *auth.TokenService
	guard     *rbac.Guard
	decisions *decisionLog
	roleID    string
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	store := rbactest.New()
	store.AddPermission(shared.PermViewUsers)
	store.AddPermission(shared.PermViewEnergy)
	store.AddPermission(shared.PermManageUsers)
	roleID := store.AddRole("admin", shared.PermViewUsers, shared.PermViewEnergy)

	tokens, err := auth.NewTokenService(secret, time.Hour)
	require.NoError(t, err)
	decisions := &decisionLog{}
	guard := rbac.NewGuard(tokens, rbac.NewResolver(store), nil, decisions)
	return &guardFixture{store: store, tokens: tokens, guard: guard, decisions: decisions, roleID: roleID}
}

func (f *guardFixture) token(t *testing.T) string {
	t.Helper()
	tok, _, err := f.tokens.Issue(shared.Identity{UserID: "u1", RoleID: f.roleID, Email: "a@b.com"})
	require.NoError(t, err)
	return tok
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.IdentityFromContext(r.Context())
		require.True(t, ok)
		httpx.OK(w, http.StatusOK, id, "")
	})
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) httpx.Envelope {
	t.Helper()
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestAuthenticateRejections(t *testing.T) {
	f := newGuardFixture(t)
	h := f.guard.Authenticate(okHandler(t))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "u1", RoleID: f.roleID, Email: "a@b.com",
	})
	expiredToken, err := expired.SignedString([]byte(secret))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", "No authorization header provided"},
		{"no scheme", f.token(t), "Invalid authorization header format. Use: Bearer <token>"},
		{"wrong scheme", "Basic abc", "Invalid authorization header format. Use: Bearer <token>"},
		{"empty token", "Bearer ", "Invalid authorization header format. Use: Bearer <token>"},
		{"extra part", "Bearer a b", "Invalid authorization header format. Use: Bearer <token>"},
		{"garbage", "Bearer not.a.token", "Invalid or expired token"},
		{"expired", "Bearer " + expiredToken, "Invalid or expired token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tc.want, env.Error)
		})
	}
}

func TestAuthenticateInjectsIdentity(t *testing.T) {
	f := newGuardFixture(t)
	rec := serve(f.guard.Authenticate(okHandler(t)), "Bearer "+f.token(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"userId":"u1","roleId":"`+f.roleID+`","email":"a@b.com"}}`, rec.Body.String())
}

func TestProtectModes(t *testing.T) {
	f := newGuardFixture(t)
	bearer := "Bearer " + f.token(t)

	cases := []struct {
		name string
		req  rbac.Requirement
		code int
		msg  string
	}{
		{"single allowed", rbac.Single(shared.PermViewUsers), http.StatusOK, ""},
		{"single denied", rbac.Single(shared.PermManageUsers), http.StatusForbidden, "Access denied. Required permission: manage_users"},
		{"any allowed", rbac.AnyOf(shared.PermManageUsers, shared.PermViewEnergy), http.StatusOK, ""},
		{"any denied", rbac.AnyOf(shared.PermManageUsers, shared.PermManageRoles), http.StatusForbidden, "Access denied. Required one of: manage_users, manage_roles"},
		{"all allowed", rbac.AllOf(shared.PermViewUsers, shared.PermViewEnergy), http.StatusOK, ""},
		{"all denied", rbac.AllOf(shared.PermViewUsers, shared.PermManageUsers), http.StatusForbidden, "Access denied. Required all of: view_users, manage_users"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(f.guard.Protect(tc.req)(okHandler(t)), bearer)
			assert.Equal(t, tc.code, rec.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decode(t, rec).Error)
			}
		})
	}
}

func TestProtectDistinguishesUnauthenticatedFromForbidden(t *testing.T) {
	f := newGuardFixture(t)
	h := f.guard.Protect(rbac.Single(shared.PermManageUsers))(okHandler(t))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "Bearer "+f.token(t)).Code)
	assert.Equal(t, []string{"token:unauthenticated", "single:denied"}, f.decisions.entries)
}

func TestRequireWithoutIdentity(t *testing.T) {
	f := newGuardFixture(t)
	rec := serve(f.guard.RequirePermission(shared.PermViewUsers)(okHandler(t)), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", decode(t, rec).Error)
}

func TestRequireUnknownRoleDenied(t *testing.T) {
	f := newGuardFixture(t)
	tok, _, err := f.tokens.Issue(shared.Identity{UserID: "u9", RoleID: "ghost-role", Email: "g@b.com"})
	require.NoError(t, err)
	rec := serve(f.guard.Protect(rbac.AnyOf(shared.PermViewUsers))(okHandler(t)), "Bearer "+tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireResolverErrorFailsClosed(t *testing.T) {
	f := newGuardFixture(t)
	f.store.ReadErr = errors.New("connection refused")
	rec := serve(f.guard.Protect(rbac.Single(shared.PermViewUsers))(okHandler(t)), "Bearer "+f.token(t))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, httpx.InternalErrorMessage, decode(t, rec).Error)
	assert.Contains(t, f.decisions.entries, "single:error")
}

func TestRequirePanicsOnEmptyRequirement(t *testing.T) {
	f := newGuardFixture(t)
	assert.Panics(t, func() { f.guard.Require(rbac.AnyOf()) })
	assert.Panics(t, func() { f.guard.RequireAll(" ") })
}

func TestGuardRereadsGraphEveryRequest(t *testing.T) {
	f := newGuardFixture(t)
	h := f.guard.Protect(rbac.Single(shared.PermViewUsers))(okHandler(t))
	bearer := "Bearer " + f.token(t)

	serve(h, bearer)
	serve(h, bearer)
	assert.Equal(t, 2, f.store.Reads)
}
