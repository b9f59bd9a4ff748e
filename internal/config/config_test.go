package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_FileWithDefaults(t *testing.T) {
	p := writeConfig(t, `
cache:
  path: /tmp/stackfind-test.db
  ttl: 2h
search:
  tag: go
  concurrency: 8
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/stackfind-test.db", cfg.Cache.Path)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "go", cfg.Search.Tag)
	assert.Equal(t, 8, cfg.Search.Concurrency)

	// defaults fill the rest
	assert.Equal(t, "https://api.stackexchange.com/2.3", cfg.Search.BaseURL)
	assert.Equal(t, "stackoverflow", cfg.Search.Site)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, PolicyFailFast, cfg.Search.Policy)
	assert.Equal(t, 10*time.Second, cfg.Search.CallTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeConfig(t, "search:\n  tag: go\n")
	t.Setenv("STACKFIND_TAG", "rust")
	t.Setenv("STACKFIND_POLICY", PolicyBestEffort)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "rust", cfg.Search.Tag)
	assert.Equal(t, PolicyBestEffort, cfg.Search.Policy)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	p := writeConfig(t, "search:\n  site: superuser\n")
	t.Setenv("STACKFIND_CONFIG", p)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "superuser", cfg.Search.Site)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "does not exist")
}

func TestLoad_DefaultCachePath(t *testing.T) {
	p := writeConfig(t, "log_level: debug\n")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, DefaultCachePath(), cfg.Cache.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad policy", "search:\n  policy: yolo\n", "search.policy"},
		{"bad scheme", "search:\n  base_url: ftp://x\n", "scheme"},
		{"too many results", "search:\n  max_results: 500\n", "max_results"},
		{"negative retries", "search:\n  retries: -1\n", "retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "cache:\n  ttl: 90m\n"))
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "ttl: 1h30m0s")
	assert.Contains(t, string(out), "site: stackoverflow")
}
