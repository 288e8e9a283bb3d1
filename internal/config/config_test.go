package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/ragchat/pkg/models"
)

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("RAGCHAT_BASE_URL", "")
	t.Setenv("RAGCHAT_USERNAME", "")
	t.Setenv("RAGCHAT_MODEL", "")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, models.PromptModeDefault, cfg.PromptMode)
	assert.Equal(t, DefaultTitlePrefix, cfg.TitlePrefix)
	assert.Equal(t, DefaultTimeout, cfg.Timeout.Duration)
}

func TestLoadFrom_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
base_url = "http://example.test:9000/"
username = "alice"
prompt_mode = "research"
timeout = "15s"

[server]
addr = ":9999"
rate_limit = 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("RAGCHAT_BASE_URL", "")
	t.Setenv("RAGCHAT_USERNAME", "")
	t.Setenv("RAGCHAT_MODEL", "qwen3:14b")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "http://example.test:9000", cfg.BaseURL)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "qwen3:14b", cfg.Model)
	assert.Equal(t, models.PromptModeResearch, cfg.PromptMode)
	assert.Equal(t, 15*time.Second, cfg.Timeout.Duration)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.InDelta(t, 1.5, cfg.Server.RateLimit, 1e-9)
}

func TestLoadFrom_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("base_url = ["), 0o644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestSaveTo_RoundTrip(t *testing.T) {
	t.Setenv("RAGCHAT_BASE_URL", "")
	t.Setenv("RAGCHAT_USERNAME", "")
	t.Setenv("RAGCHAT_MODEL", "")

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Username = "bob"
	cfg.Timeout = Duration{42 * time.Second}
	require.NoError(t, cfg.SaveTo(path))

	got, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)
	assert.Equal(t, 42*time.Second, got.Timeout.Duration)
}

func TestNextModel(t *testing.T) {
	tests := []struct {
		current string
		want    string
	}{
		{"gemma3:12b-it-q4_K_M", "gemma3:12b"},
		{"qwen2.5:14b-instruct-q5_K_M", "gemma3:12b-it-q4_K_M"},
		{"unknown", Models[0]},
	}
	for _, tt := range tests {
		if got := NextModel(tt.current); got != tt.want {
			t.Errorf("NextModel(%q) = %q, want %q", tt.current, got, tt.want)
		}
	}
	assert.True(t, KnownModel("qwen3:14b"))
	assert.False(t, KnownModel("gpt-4"))
}
