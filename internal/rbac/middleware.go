package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// TokenVerifier turns a bearer token into the identity it carries.
type TokenVerifier interface {
	Verify(token string) (shared.Identity, error)
}

// Decision outcomes reported to a DecisionObserver.
const (
	OutcomeAllowed         = "allowed"
	OutcomeDenied          = "denied"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

// DecisionObserver receives every guard decision.
type DecisionObserver interface {
	ObserveDecision(mode, outcome string)
}

// Guard authenticates bearer tokens and enforces route requirements.
type Guard struct {
	tokens   TokenVerifier
	resolver Resolver
	logger   *slog.Logger
	observer DecisionObserver
}

// NewGuard wires a Guard. observer may be nil.
func NewGuard(tokens TokenVerifier, resolver Resolver, logger *slog.Logger, observer DecisionObserver) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{tokens: tokens, resolver: resolver, logger: logger, observer: observer}
}

// Authenticate verifies the bearer token and stores the identity in the
// request context.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			g.reject(w, "token", "No authorization header provided")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || token == "" || strings.ContainsRune(token, ' ') {
			g.reject(w, "token", "Invalid authorization header format. Use: Bearer <token>")
			return
		}
		id, err := g.tokens.Verify(token)
		if err != nil {
			g.reject(w, "token", "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
	})
}

// Require enforces req for requests already passed through Authenticate.
// It panics when req names no permission.
func (g *Guard) Require(req Requirement) func(http.Handler) http.Handler {
	if req.Empty() {
		panic("rbac: requirement names no permission")
	}
	mode := req.Mode().String()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				g.reject(w, mode, "Authentication required")
				return
			}
			allowed, err := req.Evaluate(r.Context(), g.resolver, id.RoleID)
			if err != nil {
				g.logger.Error("rbac evaluate", slog.String("mode", mode), slog.String("role_id", id.RoleID), slog.Any("error", err))
				g.observe(mode, OutcomeError)
				httpx.Fail(w, http.StatusInternalServerError, httpx.InternalErrorMessage)
				return
			}
			if !allowed {
				g.observe(mode, OutcomeDenied)
				httpx.Fail(w, http.StatusForbidden, req.DeniedMessage())
				return
			}
			g.observe(mode, OutcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

// Protect chains Authenticate and Require.
func (g *Guard) Protect(req Requirement) func(http.Handler) http.Handler {
	require := g.Require(req)
	return func(next http.Handler) http.Handler {
		return g.Authenticate(require(next))
	}
}

// RequirePermission is Require(Single(name)).
func (g *Guard) RequirePermission(name string) func(http.Handler) http.Handler {
	return g.Require(Single(name))
}

// RequireAny is Require(AnyOf(names...)).
func (g *Guard) RequireAny(names ...string) func(http.Handler) http.Handler {
	return g.Require(AnyOf(names...))
}

// RequireAll is Require(AllOf(names...)).
func (g *Guard) RequireAll(names ...string) func(http.Handler) http.Handler {
	return g.Require(AllOf(names...))
}

func (g *Guard) reject(w http.ResponseWriter, mode, message string) {
	g.observe(mode, OutcomeUnauthenticated)
	httpx.Fail(w, http.StatusUnauthorized, message)
}

func (g *Guard) observe(mode, outcome string) {
	if g.observer != nil {
		g.observer.ObserveDecision(mode, outcome)
	}
}
