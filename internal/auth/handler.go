package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Authenticator guards routes that need a verified identity.
type Authenticator interface {
	Authenticate(next http.Handler) http.Handler
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Authenticator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Authenticator) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticate)
		r.Get("/me", h.handleMe)
		r.Post("/refresh", h.handleRefresh)
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, errMissingCredentials)
		return
	}
	session, err := h.service.Login(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, h.logger, "login", err)
		return
	}
	httpx.OK(w, http.StatusOK, session, "Login successful")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	profile, err := h.service.Me(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.logger, "me", err)
		return
	}
	httpx.OK(w, http.StatusOK, profile, "")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	session, err := h.service.Refresh(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, h.logger, "refresh", err)
		return
	}
	httpx.OK(w, http.StatusOK, session, "Token refreshed successfully")
}
