package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

var (
	errRoleNotFound           = shared.NewError(shared.ErrNotFound, "Role not found")
	errPermissionNotFound     = shared.NewError(shared.ErrNotFound, "Permission not found")
	errRoleNameRequired       = shared.NewError(shared.ErrValidation, "Role name is required")
	errPermissionNameRequired = shared.NewError(shared.ErrValidation, "Permission name is required")
	errPermissionIDRequired   = shared.NewError(shared.ErrValidation, "Permission ID is required")
	errRoleNameTaken          = shared.NewError(shared.ErrConflict, "Role name already exists")
	errPermissionNameTaken    = shared.NewError(shared.ErrConflict, "Permission name already exists")
)

// Invalidator drops cached resolution results after a graph mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service manages roles, the permission catalogue and the edges between them.
type Service struct {
	repo   Repository
	cache  Invalidator
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs a Service. cache and audit may be nil.
func NewService(repo Repository, cache Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// ListRoles returns all roles, newest first.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role with its permissions.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Role{}, errRoleNotFound
	}
	return role, err
}

// CreateRole inserts a role with a unique name.
func (s *Service) CreateRole(ctx context.Context, actorID string, in RoleInput) (Role, error) {
	name := trimmed(in.Name)
	if name == "" {
		return Role{}, errRoleNameRequired
	}
	role := Role{ID: uuid.NewString(), Name: name, Description: optional(in.Description), Permissions: []Permission{}}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.RoleNameTaken(ctx, name, "")
		if err != nil {
			return err
		}
		if taken {
			return errRoleNameTaken
		}
		return tx.InsertRole(ctx, &role)
	})
	if err != nil {
		return Role{}, roleWriteError(err)
	}
	s.record(ctx, actorID, "role.create", "role", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames or re-describes a role. The name must stay unique
// among other roles.
func (s *Service) UpdateRole(ctx context.Context, actorID, id string, in RoleInput) (Role, error) {
	if in.Name != nil && trimmed(in.Name) == "" {
		return Role{}, errRoleNameRequired
	}
	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.LockRole(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := trimmed(in.Name)
			taken, err := tx.RoleNameTaken(ctx, name, id)
			if err != nil {
				return err
			}
			if taken {
				return errRoleNameTaken
			}
			role.Name = name
		}
		if in.Description != nil {
			role.Description = optional(in.Description)
		}
		return tx.UpdateRole(ctx, &role)
	})
	if err != nil {
		return Role{}, roleWriteError(err)
	}
	s.record(ctx, actorID, "role.update", "role", id, map[string]any{"name": role.Name})
	return s.GetRole(ctx, id)
}

// DeleteRole removes a role and its edges. It fails with ErrRoleInUse while
// any user references the role. The role row is locked for the duration of
// the check so a concurrent reassignment onto it waits or is rejected by the
// foreign key.
func (s *Service) DeleteRole(ctx context.Context, actorID, id string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockRole(ctx, id); err != nil {
			return err
		}
		users, err := tx.CountRoleUsers(ctx, id)
		if err != nil {
			return err
		}
		if users > 0 {
			return shared.ErrRoleInUse
		}
		return tx.DeleteRole(ctx, id)
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) && db.ConstraintName(err) == db.UserRoleConstraint {
			return shared.ErrRoleInUse
		}
		return roleWriteError(err)
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "role.delete", "role", id, nil)
	return nil
}

// ListRolePermissions returns the permissions attached to a role.
func (s *Service) ListRolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissions(ctx, roleID)
}

// AssignPermission attaches a permission to a role. Assigning an existing
// edge succeeds with created == false.
func (s *Service) AssignPermission(ctx context.Context, actorID, roleID, permissionID string) (bool, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errPermissionIDRequired
	}
	var created bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockRole(ctx, roleID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errRoleNotFound
			}
			return err
		}
		if _, err := tx.LockPermission(ctx, permissionID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return errPermissionNotFound
			}
			return err
		}
		var err error
		created, err = tx.InsertRolePermission(ctx, roleID, permissionID)
		return err
	})
	switch {
	case err == nil:
	case db.IsUniqueViolation(err):
		return false, nil
	case db.IsForeignKeyViolation(err):
		return false, shared.NewError(shared.ErrNotFound, "Role or permission not found")
	default:
		return false, err
	}
	if created {
		s.invalidate(ctx)
		s.record(ctx, actorID, "role.permission.assign", "role", roleID, map[string]any{"permission_id": permissionID})
	}
	return created, nil
}

// RevokePermission detaches a permission from a role. removed is false when
// no such edge existed; the graph is untouched in that case.
func (s *Service) RevokePermission(ctx context.Context, actorID, roleID, permissionID string) (bool, error) {
	var removed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		removed, err = tx.DeleteRolePermission(ctx, roleID, permissionID)
		return err
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.invalidate(ctx)
		s.record(ctx, actorID, "role.permission.revoke", "role", roleID, map[string]any{"permission_id": permissionID})
	}
	return removed, nil
}

// ListPermissions returns the catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetPermission fetches a permission by id.
func (s *Service) GetPermission(ctx context.Context, id string) (Permission, error) {
	perm, err := s.repo.GetPermission(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return Permission{}, errPermissionNotFound
	}
	return perm, err
}

// CreatePermission adds a permission with a unique name.
func (s *Service) CreatePermission(ctx context.Context, actorID string, in PermissionInput) (Permission, error) {
	name := trimmed(in.Name)
	if name == "" {
		return Permission{}, errPermissionNameRequired
	}
	perm := Permission{
		ID:          uuid.NewString(),
		Name:        name,
		Description: optional(in.Description),
		Resource:    optional(in.Resource),
		Action:      optional(in.Action),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.PermissionNameTaken(ctx, name, "")
		if err != nil {
			return err
		}
		if taken {
			return errPermissionNameTaken
		}
		return tx.InsertPermission(ctx, &perm)
	})
	if err != nil {
		return Permission{}, permissionWriteError(err)
	}
	s.record(ctx, actorID, "permission.create", "permission", perm.ID, map[string]any{"name": perm.Name})
	return perm, nil
}

// UpdatePermission changes a permission. A rename changes what the guard
// matches, so resolution caches are dropped.
func (s *Service) UpdatePermission(ctx context.Context, actorID, id string, in PermissionInput) (Permission, error) {
	if in.Name != nil && trimmed(in.Name) == "" {
		return Permission{}, errPermissionNameRequired
	}
	var (
		perm    Permission
		renamed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		perm, err = tx.LockPermission(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := trimmed(in.Name)
			taken, err := tx.PermissionNameTaken(ctx, name, id)
			if err != nil {
				return err
			}
			if taken {
				return errPermissionNameTaken
			}
			renamed = name != perm.Name
			perm.Name = name
		}
		if in.Description != nil {
			perm.Description = optional(in.Description)
		}
		if in.Resource != nil {
			perm.Resource = optional(in.Resource)
		}
		if in.Action != nil {
			perm.Action = optional(in.Action)
		}
		return tx.UpdatePermission(ctx, &perm)
	})
	if err != nil {
		return Permission{}, permissionWriteError(err)
	}
	if renamed {
		s.invalidate(ctx)
	}
	s.record(ctx, actorID, "permission.update", "permission", id, map[string]any{"name": perm.Name})
	return perm, nil
}

// DeletePermission removes a permission. Its edges are cascaded silently and
// the number of detached roles goes to the audit trail.
func (s *Service) DeletePermission(ctx context.Context, actorID, id string) error {
	var detached int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockPermission(ctx, id); err != nil {
			return err
		}
		var err error
		detached, err = tx.CountPermissionRoles(ctx, id)
		if err != nil {
			return err
		}
		return tx.DeletePermission(ctx, id)
	})
	if err != nil {
		return permissionWriteError(err)
	}
	if detached > 0 {
		s.logger.Info("permission deleted while assigned", slog.String("permission_id", id), slog.Int("roles", detached))
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "permission.delete", "permission", id, map[string]any{"detached_roles": detached})
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("permission cache invalidate", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: entityID, Meta: meta})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func roleWriteError(err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		var domainErr *shared.Error
		if errors.As(err, &domainErr) {
			return err
		}
		return errRoleNotFound
	case db.IsUniqueViolation(err):
		return errRoleNameTaken
	default:
		return err
	}
}

func permissionWriteError(err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		var domainErr *shared.Error
		if errors.As(err, &domainErr) {
			return err
		}
		return errPermissionNotFound
	case db.IsUniqueViolation(err):
		return errPermissionNameTaken
	default:
		return err
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
