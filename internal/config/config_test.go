package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masc-dev/masc/internal/storage"
)

func TestLoad_DefaultsValidate(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8765", cfg.HTTPAddr)
	assert.Equal(t, storage.KindFS, cfg.StorageKind)
	assert.False(t, cfg.AuthEnabled)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{"-addr", ":9000", "-room", "ops", "-auth"})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "ops", cfg.RoomName)
	assert.True(t, cfg.AuthEnabled)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("MASC_ADDR", ":9100")
	t.Setenv("MASC_LOCK_TTL", "45s")
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, 45*time.Second, cfg.LockTTL)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("MASC_ADDR", ":9100")
	cfg, err := Load([]string{"-addr", ":9200"})
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.HTTPAddr)
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	_, err := Load([]string{"-storage", "postgres"})
	assert.Error(t, err)
}

func TestLoad_AllowedOriginsSplitAndTrimmed(t *testing.T) {
	cfg, err := Load([]string{"-allowed-origins", "https://a.example.com, https://b.example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}
