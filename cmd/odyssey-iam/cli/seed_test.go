package cli

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySeedStore struct {
	perms map[string]string
	roles map[string]string
	links map[[2]string]bool
	users map[string]string
}

func newMemorySeedStore() *memorySeedStore {
	return &memorySeedStore{
		perms: map[string]string{},
		roles: map[string]string{},
		links: map[[2]string]bool{},
		users: map[string]string{},
	}
}

func (m *memorySeedStore) UpsertPermission(ctx context.Context, p SeedPermission) (string, error) {
	if id, ok := m.perms[p.Name]; ok {
		return id, nil
	}
	id := fmt.Sprintf("perm-%d", len(m.perms)+1)
	m.perms[p.Name] = id
	return id, nil
}

func (m *memorySeedStore) UpsertRole(ctx context.Context, r SeedRole) (string, error) {
	if id, ok := m.roles[r.Name]; ok {
		return id, nil
	}
	id := fmt.Sprintf("role-%d", len(m.roles)+1)
	m.roles[r.Name] = id
	return id, nil
}

func (m *memorySeedStore) LinkPermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	key := [2]string{roleID, permissionID}
	if m.links[key] {
		return false, nil
	}
	m.links[key] = true
	return true, nil
}

func (m *memorySeedStore) EnsureUser(ctx context.Context, u SeedUser, roleID, passwordHash string) (bool, error) {
	if _, ok := m.users[u.Email]; ok {
		return false, nil
	}
	m.users[u.Email] = roleID + "|" + passwordHash
	return true, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "h(" + password + ")", nil }

func TestDefaultCatalogue(t *testing.T) {
	c, err := DefaultCatalogue()
	require.NoError(t, err)

	names := make([]string, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"manage_users", "view_users", "manage_roles", "view_energy"}, names)

	byRole := map[string][]string{}
	for _, r := range c.Roles {
		byRole[r.Name] = r.Permissions
	}
	assert.ElementsMatch(t, names, byRole["superadmin"])
	assert.ElementsMatch(t, []string{"view_users", "view_energy"}, byRole["admin"])
	assert.ElementsMatch(t, []string{"view_energy"}, byRole["user"])

	require.Len(t, c.Users, 1)
	assert.Equal(t, "superadmin@example.com", c.Users[0].Email)
	assert.Equal(t, "superadmin", c.Users[0].Role)
}

func TestParseCatalogueRejects(t *testing.T) {
	cases := map[string]string{
		"duplicate permission": "permissions:\n  - name: a\n  - name: a\n",
		"unknown permission":   "permissions:\n  - name: a\nroles:\n  - name: r\n    permissions: [b]\n",
		"unknown role":         "roles:\n  - name: r\nusers:\n  - {email: a@b.c, password: p, name: n, role: x}\n",
		"incomplete user":      "roles:\n  - name: r\nusers:\n  - {email: a@b.c, role: r}\n",
		"malformed":            "permissions: [",
	}
	for name, doc := range cases {
		_, err := ParseCatalogue([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	c, err := DefaultCatalogue()
	require.NoError(t, err)
	store := newMemorySeedStore()

	first, err := Seed(context.Background(), store, plainHasher{}, c)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Permissions: 4, Roles: 3, LinksCreated: 7, UsersCreated: 1}, first)

	second, err := Seed(context.Background(), store, plainHasher{}, c)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Permissions: 4, Roles: 3}, second)
	assert.Len(t, store.links, 7)
	assert.Equal(t, store.roles["superadmin"]+"|h(superadmin123)", store.users["superadmin@example.com"])
}

func TestRunHelpAndUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, Run(context.Background(), []string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "usage: odyssey-iam")

	stdout.Reset()
	assert.Equal(t, 2, Run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "frobnicate"`)
}
