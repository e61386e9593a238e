package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herdcore/internal/config"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
listen = ":9090"
storage_driver = "postgres"
postgres_dsn = "postgres://farm/herdcore"
time_zone = "America/Guayaquil"
tokens = ["collar-secret", "app-secret"]
archive_driver = "s3"

[[seed_users]]
username = "ana"
display_name = "Ana"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "herdcore.conf"), content, 0o600))
	t.Chdir(dir)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "postgres", cfg.StorageDriver)
	assert.Equal(t, "postgres://farm/herdcore", cfg.PostgresDSN)
	assert.Equal(t, "America/Guayaquil", cfg.TimeZone)
	assert.Equal(t, []string{"collar-secret", "app-secret"}, cfg.Tokens)
	assert.Equal(t, "s3", cfg.ArchiveDriver)
	require.Len(t, cfg.SeedUsers, 1)
	assert.Equal(t, "ana", cfg.SeedUsers[0].Username)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.StorageDriver)
	assert.Equal(t, "herdcore.db", cfg.SQLitePath)
	assert.Equal(t, "UTC", cfg.TimeZone)
	assert.Equal(t, "fs", cfg.ArchiveDriver)
	assert.Equal(t, "./archivedata", cfg.ArchiveRoot)
	assert.Empty(t, cfg.Tokens)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HERDCORE_STORAGE_DRIVER", "memory")
	t.Setenv("HERDCORE_TIME_ZONE", "America/Bogota")
	t.Setenv("HERDCORE_TOKENS", "one, two")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, "America/Bogota", cfg.TimeZone)
	assert.Equal(t, []string{"one", "two"}, cfg.Tokens)
}
