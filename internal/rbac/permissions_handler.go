package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// PermissionsHandler exposes the permission catalogue.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	guard     *Guard
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, guard *Guard) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, guard: guard, validator: httpx.NewValidator()}
}

type permissionRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Resource    *string `json:"resource" validate:"omitempty,max=100"`
	Action      *string `json:"action" validate:"omitempty,max=100"`
}

func (p permissionRequest) input() PermissionInput {
	return PermissionInput{Name: p.Name, Description: p.Description, Resource: p.Resource, Action: p.Action}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticate)
		r.Use(h.guard.RequirePermission(shared.PermManageRoles))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *PermissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, "list permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, perms, "")
}

func (h *PermissionsHandler) get(w http.ResponseWriter, r *http.Request) {
	perm, err := h.service.GetPermission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.logger, "get permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, perm, "")
}

func (h *PermissionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), actorID(r), req.input())
	if err != nil {
		httpx.WriteError(w, h.logger, "create permission", err)
		return
	}
	httpx.OK(w, http.StatusCreated, perm, "Permission created successfully")
}

func (h *PermissionsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), actorID(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		httpx.WriteError(w, h.logger, "update permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, perm, "Permission updated successfully")
}

func (h *PermissionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePermission(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, h.logger, "delete permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "Permission deleted successfully")
}

func actorID(r *http.Request) string {
	id, _ := shared.IdentityFromContext(r.Context())
	return id.UserID
}
