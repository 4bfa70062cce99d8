// Package roles exposes role management and the role-permission edges over HTTP.
package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *rbac.Service
	guard     *rbac.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, guard *rbac.Guard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validator: httpx.NewValidator()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Protect(rbac.Single(shared.PermManageRoles)))
		r.Get("/", h.listRoles)
		r.Post("/", h.createRole)
		r.Get("/{id}", h.getRole)
		r.Put("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
		r.Get("/{id}/permissions", h.listPermissions)
		r.Post("/{id}/permissions", h.assignPermission)
		r.Delete("/{id}/permissions/{permissionId}", h.revokePermission)
	})
}

type roleRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type assignRequest struct {
	PermissionID string `json:"permissionId"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, "list roles", err)
		return
	}
	httpx.OK(w, http.StatusOK, roles, "")
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.logger, "get role", err)
		return
	}
	httpx.OK(w, http.StatusOK, role, "")
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), actorID(r), rbac.RoleInput{Name: req.Name, Description: req.Description})
	if err != nil {
		httpx.WriteError(w, h.logger, "create role", err)
		return
	}
	httpx.OK(w, http.StatusCreated, role, "Role created successfully")
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), actorID(r), chi.URLParam(r, "id"), rbac.RoleInput{Name: req.Name, Description: req.Description})
	if err != nil {
		httpx.WriteError(w, h.logger, "update role", err)
		return
	}
	httpx.OK(w, http.StatusOK, role, "Role updated successfully")
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, h.logger, "delete role", err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "Role deleted successfully")
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListRolePermissions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, h.logger, "list role permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, perms, "")
}

func (h *Handler) assignPermission(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.AssignPermission(r.Context(), actorID(r), chi.URLParam(r, "id"), req.PermissionID)
	if err != nil {
		httpx.WriteError(w, h.logger, "assign permission", err)
		return
	}
	if !created {
		httpx.OK(w, http.StatusOK, nil, "Permission already assigned to role")
		return
	}
	httpx.OK(w, http.StatusCreated, nil, "Permission assigned successfully")
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.RevokePermission(r.Context(), actorID(r), chi.URLParam(r, "id"), chi.URLParam(r, "permissionId"))
	if err != nil {
		httpx.WriteError(w, h.logger, "revoke permission", err)
		return
	}
	if !removed {
		httpx.Fail(w, http.StatusNotFound, "Role permission not found")
		return
	}
	httpx.OK(w, http.StatusOK, nil, "Permission removed successfully")
}

func actorID(r *http.Request) string {
	id, _ := shared.IdentityFromContext(r.Context())
	return id.UserID
}
