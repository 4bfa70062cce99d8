package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type storedUser struct {
	User
	hash string
}

// memoryStore is a RepositoryPort whose transactions roll back on error.
type memoryStore struct {
	mu    sync.Mutex
	users map[string]storedUser
	roles map[string]string
	clock time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users: map[string]storedUser{},
		roles: map[string]string{"r-admin": "admin", "r-user": "user"},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) seed(id, email, roleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	m.users[id] = storedUser{User: User{ID: id, Email: email, Name: strings.Split(email, "@")[0], IsActive: true, Role: RoleRef{ID: roleID}, CreatedAt: m.clock, UpdatedAt: m.clock}, hash: "seeded"}
}

func (m *memoryStore) view(u storedUser) User {
	out := u.User
	out.Role.Name = m.roles[out.Role.ID]
	return out
}

func (m *memoryStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, m.view(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) GetUser(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return m.view(u), nil
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]storedUser, len(m.users))
	for k, v := range m.users {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.users = snapshot
		return err
	}
	return nil
}

func (m *memoryStore) hashOf(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].hash
}

type memoryTx struct{ m *memoryStore }

func (t *memoryTx) LockUser(ctx context.Context, id string) (User, error) {
	u, ok := t.m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u.User, nil
}

func (t *memoryTx) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	for id, u := range t.m.users {
		if u.Email == email && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) RoleExists(ctx context.Context, roleID string) (bool, error) {
	_, ok := t.m.roles[roleID]
	return ok, nil
}

func (t *memoryTx) InsertUser(ctx context.Context, u *User, passwordHash string) error {
	t.m.clock = t.m.clock.Add(time.Second)
	u.CreatedAt, u.UpdatedAt = t.m.clock, t.m.clock
	t.m.users[u.ID] = storedUser{User: *u, hash: passwordHash}
	return nil
}

func (t *memoryTx) UpdateUser(ctx context.Context, u *User, passwordHash *string) error {
	stored := t.m.users[u.ID]
	t.m.clock = t.m.clock.Add(time.Second)
	u.UpdatedAt = t.m.clock
	stored.User = *u
	if passwordHash != nil {
		stored.hash = *passwordHash
	}
	t.m.users[u.ID] = stored
	return nil
}

func (t *memoryTx) DeleteUser(ctx context.Context, id string) error {
	delete(t.m.users, id)
	return nil
}

type prefixHasher struct{}

func (prefixHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

type auditLog struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

func (a *auditLog) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}
