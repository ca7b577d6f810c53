package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.BackoffBase)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.APIPort = 0 }},
		{"huge port", func(c *Config) { c.APIPort = 70000 }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"zero backoff", func(c *Config) { c.BackoffBase = 0 }},
		{"cap below base", func(c *Config) { c.BackoffCap = c.BackoffBase / 2 }},
		{"zero cache", func(c *Config) { c.CacheSize = 0 }},
		{"tracing without endpoint", func(c *Config) { c.TracingEnabled = true; c.TracingEndpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
apiPort: 9090
model: claude-3-5-haiku-20241022
maxIterations: 5
backoffBase: 250ms
tracing:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "claude-3-5-haiku-20241022", cfg.Model)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffBase)
	// Untouched fields keep defaults.
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.BackoffCap)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("backoffBase: nonsense\n"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestLoadPromptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  You are a cluster assistant.\n"), 0o600))

	prompt, err := LoadPromptFile(path)
	require.NoError(t, err)
	assert.Equal(t, "You are a cluster assistant.", prompt)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("   \n"), 0o600))
	_, err = LoadPromptFile(empty)
	assert.Error(t, err)
}
