package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReadsSecretFromEnv(t *testing.T) {
	t.Setenv("HALWA_JWT_SECRET", "from-env")

	cfg := Default()
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("HALWA_JWT_SECRET", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9999\nauth:\n  jwt_secret: file-secret\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.MetricsPort)
}

func TestLoadFallsBackToEnvSecret(t *testing.T) {
	t.Setenv("HALWA_JWT_SECRET", "env-secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 1234\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
