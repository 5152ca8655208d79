package tool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkesani1/intake-go/types"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8787/api", cfg.Endpoint)
	assert.Equal(t, 30, cfg.HTTPTimeoutSeconds)
	assert.Equal(t, 3, cfg.PollIntervalSeconds)
	assert.Equal(t, 0, cfg.MaxPolls)
	assert.Equal(t, int64(50*1024*1024), cfg.Upload.MaxSizeBytes)
	assert.Contains(t, cfg.Upload.AllowedTypes, types.FileTypeCSV)
	assert.Equal(t, 255, cfg.Upload.MaxFileNameLength)
	assert.False(t, cfg.Notify.Enabled)

	// the defaults were written back so the user has a file to edit
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "endpoint:")
	assert.Contains(t, string(data), "max_size_bytes:")
}

func TestLoadConfigReadsFileAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: 10.0.0.5:9000/api/
auth_token: file-token
upload:
  max_size_bytes: 1024
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:9000/api", cfg.Endpoint, "scheme added, trailing slash dropped")
	assert.Equal(t, "file-token", cfg.AuthToken)
	assert.Equal(t, int64(1024), cfg.Upload.MaxSizeBytes)
	assert.NotEmpty(t, cfg.Upload.AllowedTypes, "unset sections are backfilled from the defaults")
	assert.Equal(t, 255, cfg.Upload.MaxFileNameLength)
	assert.Equal(t, 3, cfg.PollIntervalSeconds)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: http://file.example.com/api
auth_token: file-token
max_polls: 5
`), 0o644))

	t.Setenv("INTAKE_ENDPOINT", "env.example.com/api")
	t.Setenv("INTAKE_AUTH_TOKEN", "env-token")
	t.Setenv("INTAKE_MAX_POLLS", "9")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.com/api", cfg.Endpoint)
	assert.Equal(t, "env-token", cfg.AuthToken)
	assert.Equal(t, 9, cfg.MaxPolls)
}

func TestLoadConfigRejectsDirectory(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}
