package rbac

import (
	"context"
	"strings"
)

// Resolver answers permission questions for a role id.
type Resolver interface {
	HasPermission(ctx context.Context, roleID, name string) (bool, error)
	GetPermissions(ctx context.Context, roleID string) (PermissionSet, error)
}

// StoreResolver re-reads the stored role graph on every call.
type StoreResolver struct {
	repo Repository
}

// NewResolver returns a resolver backed by repo.
func NewResolver(repo Repository) *StoreResolver {
	return &StoreResolver{repo: repo}
}

// HasPermission reports whether roleID holds a permission called name. An
// unknown role holds nothing.
func (r *StoreResolver) HasPermission(ctx context.Context, roleID, name string) (bool, error) {
	if strings.TrimSpace(roleID) == "" || name == "" {
		return false, nil
	}
	return r.repo.HasPermission(ctx, roleID, name)
}

// GetPermissions materializes every permission name reachable from roleID.
func (r *StoreResolver) GetPermissions(ctx context.Context, roleID string) (PermissionSet, error) {
	if strings.TrimSpace(roleID) == "" {
		return PermissionSet{}, nil
	}
	names, err := r.repo.RolePermissionNames(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(names...), nil
}

var _ Resolver = (*StoreResolver)(nil)
