package cli

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
)

//go:embed seed.yaml
var defaultCatalogue []byte

// Catalogue is the declarative default data set.
type Catalogue struct {
	Permissions []SeedPermission `yaml:"permissions"`
	Roles       []SeedRole       `yaml:"roles"`
	Users       []SeedUser       `yaml:"users"`
}

// SeedPermission declares one permission.
type SeedPermission struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Resource    string `yaml:"resource"`
	Action      string `yaml:"action"`
}

// SeedRole declares a role and the permissions it holds.
type SeedRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// SeedUser declares a bootstrap account. It is created only when its email
// is not registered yet; existing accounts are never modified.
type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Role     string `yaml:"role"`
}

// DefaultCatalogue returns the embedded catalogue.
func DefaultCatalogue() (Catalogue, error) {
	return ParseCatalogue(defaultCatalogue)
}

// ParseCatalogue decodes and validates YAML.
func ParseCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, fmt.Errorf("seed: parse catalogue: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalogue{}, err
	}
	return c, nil
}

// Validate checks that every reference resolves inside the catalogue.
func (c Catalogue) Validate() error {
	perms := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		if p.Name == "" {
			return errors.New("seed: permission without name")
		}
		if _, dup := perms[p.Name]; dup {
			return fmt.Errorf("seed: duplicate permission %q", p.Name)
		}
		perms[p.Name] = struct{}{}
	}
	roles := make(map[string]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		if r.Name == "" {
			return errors.New("seed: role without name")
		}
		if _, dup := roles[r.Name]; dup {
			return fmt.Errorf("seed: duplicate role %q", r.Name)
		}
		roles[r.Name] = struct{}{}
		for _, p := range r.Permissions {
			if _, ok := perms[p]; !ok {
				return fmt.Errorf("seed: role %q references unknown permission %q", r.Name, p)
			}
		}
	}
	for _, u := range c.Users {
		if u.Email == "" || u.Password == "" || u.Name == "" {
			return errors.New("seed: user requires email, password and name")
		}
		if _, ok := roles[u.Role]; !ok {
			return fmt.Errorf("seed: user %q references unknown role %q", u.Email, u.Role)
		}
	}
	return nil
}

// SeedStore upserts catalogue entries inside one transaction.
type SeedStore interface {
	UpsertPermission(ctx context.Context, p SeedPermission) (string, error)
	UpsertRole(ctx context.Context, r SeedRole) (string, error)
	// LinkPermission reports whether a new edge was created.
	LinkPermission(ctx context.Context, roleID, permissionID string) (bool, error)
	// EnsureUser reports whether the user was created.
	EnsureUser(ctx context.Context, u SeedUser, roleID, passwordHash string) (bool, error)
}

// PasswordHasher hashes seed passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Invalidator drops cached permission sets after seeding.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SeedReport counts what a run changed.
type SeedReport struct {
	Permissions  int
	Roles        int
	LinksCreated int
	UsersCreated int
}

// Seed applies c through store. Reruns are idempotent.
func Seed(ctx context.Context, store SeedStore, hasher PasswordHasher, c Catalogue) (SeedReport, error) {
	var report SeedReport
	permIDs := make(map[string]string, len(c.Permissions))
	for _, p := range c.Permissions {
		id, err := store.UpsertPermission(ctx, p)
		if err != nil {
			return report, fmt.Errorf("seed: permission %s: %w", p.Name, err)
		}
		permIDs[p.Name] = id
		report.Permissions++
	}
	roleIDs := make(map[string]string, len(c.Roles))
	for _, r := range c.Roles {
		id, err := store.UpsertRole(ctx, r)
		if err != nil {
			return report, fmt.Errorf("seed: role %s: %w", r.Name, err)
		}
		roleIDs[r.Name] = id
		report.Roles++
		for _, name := range r.Permissions {
			created, err := store.LinkPermission(ctx, id, permIDs[name])
			if err != nil {
				return report, fmt.Errorf("seed: link %s to %s: %w", name, r.Name, err)
			}
			if created {
				report.LinksCreated++
			}
		}
	}
	for _, u := range c.Users {
		hash, err := hasher.Hash(u.Password)
		if err != nil {
			return report, err
		}
		created, err := store.EnsureUser(ctx, u, roleIDs[u.Role], hash)
		if err != nil {
			return report, fmt.Errorf("seed: user %s: %w", u.Email, err)
		}
		if created {
			report.UsersCreated++
		}
	}
	return report, nil
}

// SeedOptions defines available flags for the seed command.
type SeedOptions struct {
	File   string
	Stdout io.Writer
	Stderr io.Writer
}

// SeedCommand loads the catalogue, applies it in one transaction and prints
// a summary. It returns the process exit code.
func SeedCommand(ctx context.Context, pool *pgxpool.Pool, hasher PasswordHasher, cache Invalidator, opts SeedOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	catalogue, err := loadCatalogue(opts.File)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "seed: %v\n", err)
		return 1
	}
	var report SeedReport
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var err error
		report, err = Seed(ctx, &pgSeedStore{tx: tx}, hasher, catalogue)
		return err
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "seed: %v\n", err)
		return 1
	}
	if cache != nil {
		if err := cache.Invalidate(ctx); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "seed: invalidate permission cache: %v\n", err)
		}
	}
	_, _ = fmt.Fprintf(opts.Stdout, "seeded %d permissions, %d roles, %d new links, %d new users\n",
		report.Permissions, report.Roles, report.LinksCreated, report.UsersCreated)
	return 0
}

func loadCatalogue(path string) (Catalogue, error) {
	if path == "" {
		return DefaultCatalogue()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, err
	}
	return ParseCatalogue(data)
}

type pgSeedStore struct {
	tx pgx.Tx
}

func (s *pgSeedStore) UpsertPermission(ctx context.Context, p SeedPermission) (string, error) {
	var id string
	err := s.tx.QueryRow(ctx, `INSERT INTO permissions (id, name, description, resource, action)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, resource = EXCLUDED.resource,
    action = EXCLUDED.action, updated_at = NOW()
RETURNING id`, uuid.NewString(), p.Name, p.Description, p.Resource, p.Action).Scan(&id)
	return id, err
}

func (s *pgSeedStore) UpsertRole(ctx context.Context, r SeedRole) (string, error) {
	var id string
	err := s.tx.QueryRow(ctx, `INSERT INTO roles (id, name, description) VALUES ($1, $2, NULLIF($3, ''))
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, updated_at = NOW()
RETURNING id`, uuid.NewString(), r.Name, r.Description).Scan(&id)
	return id, err
}

func (s *pgSeedStore) LinkPermission(ctx context.Context, roleID, permissionID string) (bool, error) {
	tag, err := s.tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgSeedStore) EnsureUser(ctx context.Context, u SeedUser, roleID, passwordHash string) (bool, error) {
	tag, err := s.tx.Exec(ctx, `INSERT INTO users (id, email, name, password_hash, role_id) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (email) DO NOTHING`, uuid.NewString(), u.Email, u.Name, passwordHash, roleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
