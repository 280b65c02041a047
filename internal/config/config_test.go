package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/herald")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_ADDRESS", "")
	t.Setenv("SYNC_DEBOUNCE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "./migrations", cfg.MigrationsPath)
	assert.Equal(t, 7*time.Second, cfg.SyncDebounce)
	assert.False(t, cfg.UseSpaces)
}

func TestLoadDebounceOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/herald")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SYNC_DEBOUNCE", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncDebounce)

	t.Setenv("SYNC_DEBOUNCE", "soon")
	_, err = Load()
	assert.Error(t, err)
}
