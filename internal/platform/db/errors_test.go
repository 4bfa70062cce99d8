package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyPgErrors(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"}
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "users_role_id_fkey"}

	assert.True(t, IsUniqueViolation(unique))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert role: %w", unique)))
	assert.False(t, IsUniqueViolation(fk))

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(unique))

	assert.Equal(t, "roles_name_key", ConstraintName(unique))
	assert.Equal(t, "", ConstraintName(fmt.Errorf("plain")))

	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(unique))
}
