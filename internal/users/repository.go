package users

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the write surface inside one transaction.
type TxRepository interface {
	LockUser(ctx context.Context, id string) (User, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
	// RoleExists share-locks the role so it cannot be deleted before commit.
	RoleExists(ctx context.Context, roleID string) (bool, error)
	InsertUser(ctx context.Context, u *User, passwordHash string) error
	UpdateUser(ctx context.Context, u *User, passwordHash *string) error
	DeleteUser(ctx context.Context, id string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectUser = `SELECT u.id, u.email, u.name, u.is_active, u.role_id, r.name, u.created_at, u.updated_at
FROM users u
JOIN roles r ON r.id = u.role_id`

// ListUsers returns all users, newest first.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, selectUser+` ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, err
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (User, error) {
	return getUser(ctx, r.pool, selectUser+` WHERE u.id = $1`, id)
}

// WithTx runs fn inside a ReadCommitted transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockUser(ctx context.Context, id string) (User, error) {
	return getUser(ctx, t.tx, selectUser+` WHERE u.id = $1 FOR UPDATE OF u`, id)
}

func (t *txRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`, email, excludeID).Scan(&taken)
	return taken, err
}

func (t *txRepository) RoleExists(ctx context.Context, roleID string) (bool, error) {
	rows, err := t.tx.Query(ctx, `SELECT 1 FROM roles WHERE id = $1 FOR SHARE`, roleID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	return found, rows.Err()
}

func (t *txRepository) InsertUser(ctx context.Context, u *User, passwordHash string) error {
	return t.tx.QueryRow(ctx, `INSERT INTO users (id, email, name, password_hash, role_id, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`, u.ID, u.Email, u.Name, passwordHash, u.Role.ID, u.IsActive).
		Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (t *txRepository) UpdateUser(ctx context.Context, u *User, passwordHash *string) error {
	return t.tx.QueryRow(ctx, `UPDATE users SET email = $2, name = $3, role_id = $4, is_active = $5,
    password_hash = COALESCE($6, password_hash), updated_at = NOW()
WHERE id = $1
RETURNING updated_at`, u.ID, u.Email, u.Name, u.Role.ID, u.IsActive, passwordHash).Scan(&u.UpdatedAt)
}

func (t *txRepository) DeleteUser(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getUser(ctx context.Context, q rowQuerier, sql, id string) (User, error) {
	var u User
	err := q.QueryRow(ctx, sql, id).Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.Role.ID, &u.Role.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func scanUser(row pgx.CollectableRow) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.Role.ID, &u.Role.Name, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)
