package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TOMESHELF_URL", "http://backend.local")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "7575", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Playback.ProgressWriteInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.DebounceWindow)
	assert.Equal(t, 3, cfg.Playback.PreloadCount)
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.EndTolerance)
	assert.Equal(t, "./playback-journal.db", cfg.Paths.JournalFile)
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TOMESHELF_URL", "")
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")

	content := `
server:
  port: "9000"
backend:
  url: http://tomeshelf.example.com
  token: secret-token
playback:
  progress_write_interval: 30s
  preload_count: 2
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "http://tomeshelf.example.com", cfg.Backend.URL)
	assert.Equal(t, "secret-token", cfg.Backend.Token)
	assert.Equal(t, 30*time.Second, cfg.Playback.ProgressWriteInterval)
	assert.Equal(t, 2, cfg.Playback.PreloadCount)
	// Untouched values keep defaults
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.DebounceWindow)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("backend:\n  url: http://from-file\n"), 0644))

	t.Setenv("TOMESHELF_URL", "http://from-env")
	t.Setenv("PRELOAD_COUNT", "5")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.Backend.URL)
	assert.Equal(t, 5, cfg.Playback.PreloadCount)
}

func TestLoadMissingBackendURL(t *testing.T) {
	t.Setenv("TOMESHELF_URL", "")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestProgressIntervalFloor(t *testing.T) {
	t.Setenv("TOMESHELF_URL", "http://backend.local")
	t.Setenv("PROGRESS_WRITE_INTERVAL", "5s")

	_, err := Load("")
	assert.Error(t, err)
}

func TestGraphQLEndpoint(t *testing.T) {
	cfg := &Config{}
	cfg.Backend.URL = "http://backend.local/"
	assert.Equal(t, "http://backend.local/api/graphql", cfg.GraphQLEndpoint())

	cfg.Backend.GraphQLURL = "http://gql.local/query"
	assert.Equal(t, "http://gql.local/query", cfg.GraphQLEndpoint())
}
