package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Repository exposes the read side of the role graph and the transactional
// boundary for its mutations.
type Repository interface {
	HasPermission(ctx context.Context, roleID, name string) (bool, error)
	RolePermissionNames(ctx context.Context, roleID string) ([]string, error)
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	ListRolePermissions(ctx context.Context, roleID string) ([]Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the mutation surface available inside one transaction.
type TxRepository interface {
	LockRole(ctx context.Context, id string) (Role, error)
	LockPermission(ctx context.Context, id string) (Permission, error)
	RoleNameTaken(ctx context.Context, name, excludeID string) (bool, error)
	PermissionNameTaken(ctx context.Context, name, excludeID string) (bool, error)
	InsertRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	CountRoleUsers(ctx context.Context, roleID string) (int, error)
	DeleteRole(ctx context.Context, id string) error
	InsertRolePermission(ctx context.Context, roleID, permissionID string) (bool, error)
	DeleteRolePermission(ctx context.Context, roleID, permissionID string) (bool, error)
	InsertPermission(ctx context.Context, perm *Permission) error
	UpdatePermission(ctx context.Context, perm *Permission) error
	CountPermissionRoles(ctx context.Context, permissionID string) (int, error)
	DeletePermission(ctx context.Context, id string) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside a ReadCommitted transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

// HasPermission checks a single edge by permission name.
func (r *PGRepository) HasPermission(ctx context.Context, roleID, name string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
    SELECT 1 FROM role_permissions rp
    JOIN permissions p ON p.id = rp.permission_id
    WHERE rp.role_id = $1 AND p.name = $2)`, roleID, name).Scan(&ok)
	return ok, err
}

// RolePermissionNames materializes the permission names reachable from roleID.
func (r *PGRepository) RolePermissionNames(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.name FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const selectRole = `SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
    (SELECT COUNT(*) FROM users u WHERE u.role_id = r.id)
FROM roles r`

// ListRoles returns roles newest first with their permissions and user counts.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, selectRole+` ORDER BY r.created_at DESC, r.name`)
	if err != nil {
		return nil, err
	}
	roles, err := pgx.CollectRows(rows, scanRoleWithCount)
	if err != nil {
		return nil, err
	}
	edges, err := r.pool.Query(ctx, `SELECT rp.role_id, `+permissionColumns+`
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer edges.Close()
	byRole := make(map[string][]Permission)
	for edges.Next() {
		var roleID string
		var p Permission
		if err := edges.Scan(&roleID, &p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		byRole[roleID] = append(byRole[roleID], p)
	}
	if err := edges.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = nonNil(byRole[roles[i].ID])
	}
	return roles, nil
}

// GetRole fetches a role with its permissions.
func (r *PGRepository) GetRole(ctx context.Context, id string) (Role, error) {
	rows, err := r.pool.Query(ctx, selectRole+` WHERE r.id = $1`, id)
	if err != nil {
		return Role{}, err
	}
	role, err := pgx.CollectExactlyOneRow(rows, scanRoleWithCount)
	if err != nil {
		if db.IsNoRows(err) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions, err = r.ListRolePermissions(ctx, id)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

const permissionColumns = `p.id, p.name, p.description, p.resource, p.action, p.created_at, p.updated_at`

// ListRolePermissions returns the permissions attached to roleID.
func (r *PGRepository) ListRolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+`
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	perms, err := pgx.CollectRows(rows, scanPermission)
	return nonNil(perms), err
}

// ListPermissions returns the catalogue ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions p ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	perms, err := pgx.CollectRows(rows, scanPermission)
	return nonNil(perms), err
}

// GetPermission fetches a permission by id.
func (r *PGRepository) GetPermission(ctx context.Context, id string) (Permission, error) {
	return getPermission(ctx, r.pool, `SELECT `+permissionColumns+` FROM permissions p WHERE p.id = $1`, id)
}

type pgTx struct {
	q querier
}

func (t *pgTx) LockRole(ctx context.Context, id string) (Role, error) {
	var role Role
	err := t.q.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1 FOR UPDATE`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func (t *pgTx) LockPermission(ctx context.Context, id string) (Permission, error) {
	return getPermission(ctx, t.q, `SELECT `+permissionColumns+` FROM permissions p WHERE p.id = $1 FOR UPDATE`, id)
}

func (t *pgTx) RoleNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var taken bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1 AND id <> $2)`, name, excludeID).Scan(&taken)
	return taken, err
}

func (t *pgTx) PermissionNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var taken bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE name = $1 AND id <> $2)`, name, excludeID).Scan(&taken)
	return taken, err
}

func (t *pgTx) InsertRole(ctx context.Context, role *Role) error {
	return t.q.QueryRow(ctx, `INSERT INTO roles (id, name, description) VALUES ($1, $2, $3)
RETURNING created_at, updated_at`, role.ID, role.Name, role.Description).Scan(&role.CreatedAt, &role.UpdatedAt)
}

func (t *pgTx) UpdateRole(ctx context.Context, role *Role) error {
	return t.q.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1
RETURNING updated_at`, role.ID, role.Name, role.Description).Scan(&role.UpdatedAt)
}

func (t *pgTx) CountRoleUsers(ctx context.Context, roleID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
}

func (t *pgTx) DeleteRole(ctx context.Context, id string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	return err
}

func (t *pgTx) InsertRolePermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	tag, err := t.q.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) DeleteRolePermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	tag, err := t.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) InsertPermission(ctx context.Context, perm *Permission) error {
	return t.q.QueryRow(ctx, `INSERT INTO permissions (id, name, description, resource, action) VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`, perm.ID, perm.Name, perm.Description, perm.Resource, perm.Action).
		Scan(&perm.CreatedAt, &perm.UpdatedAt)
}

func (t *pgTx) UpdatePermission(ctx context.Context, perm *Permission) error {
	return t.q.QueryRow(ctx, `UPDATE permissions SET name = $2, description = $3, resource = $4, action = $5, updated_at = NOW()
WHERE id = $1 RETURNING updated_at`, perm.ID, perm.Name, perm.Description, perm.Resource, perm.Action).Scan(&perm.UpdatedAt)
}

func (t *pgTx) CountPermissionRoles(ctx context.Context, permissionID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1`, permissionID).Scan(&n)
	return n, err
}

func (t *pgTx) DeletePermission(ctx context.Context, id string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	return err
}

func scanRoleWithCount(row pgx.CollectableRow) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.UserCount)
	return role, err
}

func scanPermission(row pgx.CollectableRow) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getPermission(ctx context.Context, q querier, sql, id string) (Permission, error) {
	var p Permission
	err := q.QueryRow(ctx, sql, id).Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var (
	_ Repository   = (*PGRepository)(nil)
	_ TxRepository = (*pgTx)(nil)
)
