// Package rbactest provides an in-memory rbac.Repository for tests.
package rbactest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type edge struct {
	roleID       string
	permissionID string
}

type state struct {
	roles map[string]rbac.Role
	perms map[string]rbac.Permission
	edges map[edge]struct{}
	users map[string]string
}

func (s state) clone() state {
	c := state{
		roles: make(map[string]rbac.Role, len(s.roles)),
		perms: make(map[string]rbac.Permission, len(s.perms)),
		edges: make(map[edge]struct{}, len(s.edges)),
		users: make(map[string]string, len(s.users)),
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.perms {
		c.perms[k] = v
	}
	for k := range s.edges {
		c.edges[k] = struct{}{}
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// Store keeps the role graph in memory. Transactions are serialized and a
// failing transaction rolls back to the state it started from.
type Store struct {
	mu    sync.Mutex
	st    state
	clock time.Time
	seq   int

	// ReadErr, when set, is returned by the resolver read methods.
	ReadErr error
	// Reads counts resolver reads.
	Reads int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st: state{
			roles: map[string]rbac.Role{},
			perms: map[string]rbac.Permission{},
			edges: map[edge]struct{}{},
			users: map[string]string{},
		},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// AddPermission inserts a permission and returns its id.
func (s *Store) AddPermission(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("perm")
	now := s.tick()
	s.st.perms[id] = rbac.Permission{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	return id
}

// AddRole inserts a role holding the named permissions, which must exist.
func (s *Store) AddRole(name string, permissions ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("role")
	now := s.tick()
	s.st.roles[id] = rbac.Role{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	for _, pn := range permissions {
		for pid, p := range s.st.perms {
			if p.Name == pn {
				s.st.edges[edge{id, pid}] = struct{}{}
			}
		}
	}
	return id
}

// PermissionID looks up a permission id by name.
func (s *Store) PermissionID(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.st.perms {
		if p.Name == name {
			return id
		}
	}
	return ""
}

// SetUserRole points userID at roleID, standing in for the users table.
func (s *Store) SetUserRole(userID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[userID] = roleID
}

// RemoveUser drops userID.
func (s *Store) RemoveUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.users, userID)
}

// EdgeCount returns the number of role-permission edges.
func (s *Store) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.edges)
}

// HasPermission implements rbac.Repository.
func (s *Store) HasPermission(ctx context.Context, roleID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.ReadErr != nil {
		return false, s.ReadErr
	}
	for e := range s.st.edges {
		if e.roleID == roleID && s.st.perms[e.permissionID].Name == name {
			return true, nil
		}
	}
	return false, nil
}

// RolePermissionNames implements rbac.Repository.
func (s *Store) RolePermissionNames(ctx context.Context, roleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	var names []string
	for e := range s.st.edges {
		if e.roleID == roleID {
			names = append(names, s.st.perms[e.permissionID].Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListRoles implements rbac.Repository.
func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Role, 0, len(s.st.roles))
	for id := range s.st.roles {
		out = append(out, s.roleView(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetRole implements rbac.Repository.
func (s *Store) GetRole(ctx context.Context, id string) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.roles[id]; !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return s.roleView(id), nil
}

// ListRolePermissions implements rbac.Repository.
func (s *Store) ListRolePermissions(ctx context.Context, roleID string) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolePerms(roleID), nil
}

// ListPermissions implements rbac.Repository.
func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rbac.Permission, 0, len(s.st.perms))
	for _, p := range s.st.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetPermission implements rbac.Repository.
func (s *Store) GetPermission(ctx context.Context, id string) (rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.perms[id]
	if !ok {
		return rbac.Permission{}, shared.ErrNotFound
	}
	return p, nil
}

// WithTx implements rbac.Repository.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, rbac.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(ctx, &tx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) roleView(id string) rbac.Role {
	r := s.st.roles[id]
	r.Permissions = s.rolePerms(id)
	r.UserCount = 0
	for _, rid := range s.st.users {
		if rid == id {
			r.UserCount++
		}
	}
	return r
}

func (s *Store) rolePerms(roleID string) []rbac.Permission {
	out := []rbac.Permission{}
	for e := range s.st.edges {
		if e.roleID == roleID {
			out = append(out, s.st.perms[e.permissionID])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type tx struct {
	s *Store
}

func (t *tx) LockRole(ctx context.Context, id string) (rbac.Role, error) {
	r, ok := t.s.st.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (t *tx) LockPermission(ctx context.Context, id string) (rbac.Permission, error) {
	p, ok := t.s.st.perms[id]
	if !ok {
		return rbac.Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (t *tx) RoleNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	for id, r := range t.s.st.roles {
		if r.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) PermissionNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	for id, p := range t.s.st.perms {
		if p.Name == name && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertRole(ctx context.Context, role *rbac.Role) error {
	if _, dup := t.s.st.roles[role.ID]; dup {
		return fmt.Errorf("rbactest: duplicate role id %s", role.ID)
	}
	now := t.s.tick()
	role.CreatedAt, role.UpdatedAt = now, now
	stored := *role
	stored.Permissions = nil
	t.s.st.roles[role.ID] = stored
	return nil
}

func (t *tx) UpdateRole(ctx context.Context, role *rbac.Role) error {
	role.UpdatedAt = t.s.tick()
	stored := *role
	stored.Permissions = nil
	t.s.st.roles[role.ID] = stored
	return nil
}

func (t *tx) CountRoleUsers(ctx context.Context, roleID string) (int, error) {
	n := 0
	for _, rid := range t.s.st.users {
		if rid == roleID {
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteRole(ctx context.Context, id string) error {
	delete(t.s.st.roles, id)
	for e := range t.s.st.edges {
		if e.roleID == id {
			delete(t.s.st.edges, e)
		}
	}
	return nil
}

func (t *tx) InsertRolePermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	e := edge{roleID, permissionID}
	if _, ok := t.s.st.edges[e]; ok {
		return false, nil
	}
	t.s.st.edges[e] = struct{}{}
	return true, nil
}

func (t *tx) DeleteRolePermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	e := edge{roleID, permissionID}
	if _, ok := t.s.st.edges[e]; !ok {
		return false, nil
	}
	delete(t.s.st.edges, e)
	return true, nil
}

func (t *tx) InsertPermission(ctx context.Context, perm *rbac.Permission) error {
	now := t.s.tick()
	perm.CreatedAt, perm.UpdatedAt = now, now
	t.s.st.perms[perm.ID] = *perm
	return nil
}

func (t *tx) UpdatePermission(ctx context.Context, perm *rbac.Permission) error {
	perm.UpdatedAt = t.s.tick()
	t.s.st.perms[perm.ID] = *perm
	return nil
}

func (t *tx) CountPermissionRoles(ctx context.Context, permissionID string) (int, error) {
	n := 0
	for e := range t.s.st.edges {
		if e.permissionID == permissionID {
			n++
		}
	}
	return n, nil
}

func (t *tx) DeletePermission(ctx context.Context, id string) error {
	delete(t.s.st.perms, id)
	for e := range t.s.st.edges {
		if e.permissionID == id {
			delete(t.s.st.edges, e)
		}
	}
	return nil
}

var (
	_ rbac.Repository   = (*Store)(nil)
	_ rbac.TxRepository = (*tx)(nil)
)
