//go:build integration

package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/db/dbtest"
)

func TestMigrateIsRepeatable(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()

	version, err := db.Migrate(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	for _, table := range []string{"roles", "permissions", "role_permissions", "users", "audit_logs"} {
		var exists bool
		require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists))
		assert.True(t, exists, table)
	}
}

func TestUserRoleForeignKeyRestricts(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO roles (id, name) VALUES ('r1', 'editor')`)
	require.NoError(t, err)
	dbtest.InsertUser(t, pool, "u1", "u1@example.com", "r1", "x")

	_, err = pool.Exec(ctx, `DELETE FROM roles WHERE id = 'r1'`)
	require.Error(t, err)
	assert.True(t, db.IsForeignKeyViolation(err))
	assert.Equal(t, db.UserRoleConstraint, db.ConstraintName(err))

	_, err = pool.Exec(ctx, `INSERT INTO users (id, email, name, password_hash, role_id) VALUES ('u3', 'u1@example.com', 'u3', 'x', 'r1')`)
	assert.True(t, db.IsUniqueViolation(err))
}
