package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DRAFT_STORE", "")
	t.Setenv("DRAFT_DEBOUNCE", "")
	t.Setenv("DRAFT_FLUSH_INTERVAL", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Draft.Store)
	assert.Equal(t, DefaultKeyPrefix, cfg.Draft.KeyPrefix)
	assert.Equal(t, 3*time.Second, cfg.Draft.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Draft.FlushInterval)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DRAFT_STORE", "Memory")
	t.Setenv("DRAFT_DEBOUNCE", "500ms")
	t.Setenv("DRAFT_FLUSH_INTERVAL", "10s")
	t.Setenv("MEMORY_STORE_FAILURE_RATE", "0.25")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SUPABASE_JWT_SECRET", "legacy")
	t.Setenv("user", "app")
	t.Setenv("password", "pw")
	t.Setenv("host", "db")
	t.Setenv("port", "6543")
	t.Setenv("dbname", "reviews")
	t.Setenv("sslmode", "disable")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Draft.Store)
	assert.Equal(t, 500*time.Millisecond, cfg.Draft.Debounce)
	assert.Equal(t, 10*time.Second, cfg.Draft.FlushInterval)
	assert.InDelta(t, 0.25, cfg.Draft.FailureRate, 1e-9)
	assert.Equal(t, "legacy", cfg.JWTSecret)
	assert.Equal(t, "postgres://app:pw@db:6543/reviews?sslmode=disable", cfg.Database.DSN())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("DRAFT_DEBOUNCE", "soon")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("DRAFT_DEBOUNCE", "")
	t.Setenv("DRAFT_STORE", "redis")
	_, err = FromEnv()
	assert.Error(t, err)

	t.Setenv("DRAFT_STORE", "memory")
	t.Setenv("MEMORY_STORE_FAILURE_RATE", "2")
	_, err = FromEnv()
	assert.Error(t, err)
}
