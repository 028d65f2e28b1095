package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, "themes", cfg.Themes.Dir)
	assert.Equal(t, 5*time.Minute, cfg.Cache.GlobalsTTL.Std())
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
  read_timeout: 5s
database:
  url: postgres://localhost/storefront
cache:
  globals_ttl: 30s
auth:
  jwt_secret: file-secret
  skip_paths:
    - /health
cors:
  allowed_origins:
    - https://admin.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, "postgres://localhost/storefront", cfg.Database.URL)
	assert.Equal(t, 30*time.Second, cfg.Cache.GlobalsTTL.Std())
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.CORS.AllowedOrigins)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout.Std())
	assert.Equal(t, "themes", cfg.Themes.Dir)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
cache:
  globals_ttl: 30s
`)

	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("GLOBALS_TTL", "2m")
	t.Setenv("RATE_LIMIT_RPS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
	assert.Equal(t, 2*time.Minute, cfg.Cache.GlobalsTTL.Std())
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  read_timeout: soon
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
rate_limit:
  requests_per_second: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requests_per_second")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}
