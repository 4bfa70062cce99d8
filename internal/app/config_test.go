package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/odyssey-iam/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "dev-secret")
	t.Setenv("APP_ENV", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":3001", cfg.AppAddr)
	assert.Equal(t, 168*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.False(t, cfg.PermissionCacheEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{AppEnv: "development", JWTSecret: "short", JWTTTL: time.Hour, BcryptCost: 10}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.AppEnv = "production"
	assert.ErrorContains(t, cfg.Validate(), "at least 32 bytes")
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.BcryptCost = 2
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.JWTTTL = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.PermissionCacheTTL = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.RedisAddr = "localhost:6379"
	cfg.PermissionCacheTTL = time.Minute
	assert.True(t, cfg.PermissionCacheEnabled())
}
