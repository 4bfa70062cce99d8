package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *rbac.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: httpx.NewValidator()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.Authenticate)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermViewUsers))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePermission(shared.PermManageUsers))
		r.Post("/", h.createUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, "list users", err)
		return
	}
	httpx.OK(w, http.StatusOK, users, "")
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.logger, "get user", err)
		return
	}
	httpx.OK(w, http.StatusOK, user, "")
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeAndValidate(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), actorID(r), in)
	if err != nil {
		httpx.WriteError(w, h.logger, "create user", err)
		return
	}
	httpx.OK(w, http.StatusCreated, user, "User created successfully")
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.DecodeAndValidate(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), actorID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		httpx.WriteError(w, h.logger, "update user", err)
		return
	}
	httpx.OK(w, http.StatusOK, user, "User updated successfully")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, h.logger, "delete user", err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "User deleted successfully")
}

func actorID(r *http.Request) string {
	id, _ := shared.IdentityFromContext(r.Context())
	return id.UserID
}
