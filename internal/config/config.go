// Package config loads and persists ragchat settings.
//
// Settings live in $XDG_CONFIG_HOME/ragchat/config.toml (os.UserConfigDir).
// Missing files and missing keys fall back to built-in defaults, and a few
// RAGCHAT_* environment variables override what the file says.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/strrl/ragchat/pkg/models"
)

const (
	// DefaultBaseURL is where the chat backend is expected when nothing is configured.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultModel is preselected for new users.
	DefaultModel = "gemma3:12b"

	// DefaultTitlePrefix is the label used for new, untitled sessions.
	DefaultTitlePrefix = "New chat"

	// DefaultTimeout bounds every backend call. Completions can be slow.
	DefaultTimeout = 120 * time.Second

	appDir   = "ragchat"
	fileName = "config.toml"
)

// Models lists the model identifiers the backend accepts.
var Models = []string{
	"gemma3:12b-it-q4_K_M",
	"gemma3:12b",
	"qwen3:14b",
	"qwen2.5:14b-instruct-q5_K_M",
}

// Config is the complete client and reference-server configuration.
type Config struct {
	BaseURL     string   `toml:"base_url"`
	Username    string   `toml:"username"`
	Model       string   `toml:"model"`
	PromptMode  string   `toml:"prompt_mode"`
	TitlePrefix string   `toml:"title_prefix"`
	Timeout     Duration `toml:"timeout"`
	LogFile     string   `toml:"log_file"`

	Server ServerConfig `toml:"server"`
}

// ServerConfig configures `ragchat serve`.
type ServerConfig struct {
	Addr      string  `toml:"addr"`
	DBPath    string  `toml:"db_path"`
	OllamaURL string  `toml:"ollama_url"`
	RateLimit float64 `toml:"rate_limit"` // requests per second per user, 0 disables
	Burst     int     `toml:"burst"`
}

// Duration wraps time.Duration so it can be written as "90s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		PromptMode:  models.PromptModeDefault,
		TitlePrefix: DefaultTitlePrefix,
		Timeout:     Duration{DefaultTimeout},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8000",
			OllamaURL: "http://127.0.0.1:11434",
			RateLimit: 0.5,
			Burst:     30,
		},
	}
}

// Dir returns the directory holding ragchat's files.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the config file at its default location.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads path; a missing file yields the defaults.
// Environment overrides are applied last.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("RAGCHAT_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("RAGCHAT_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("RAGCHAT_MODEL"); v != "" {
		c.Model = v
	}
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.PromptMode != models.PromptModeResearch {
		c.PromptMode = models.PromptModeDefault
	}
	if strings.TrimSpace(c.TitlePrefix) == "" {
		c.TitlePrefix = DefaultTitlePrefix
	}
	if c.Timeout.Duration <= 0 {
		c.Timeout.Duration = DefaultTimeout
	}
}

// Save writes the config to its default location.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config atomically (temp file + rename).
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), fileName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// NextModel returns the catalogue entry after current, wrapping around.
func NextModel(current string) string {
	for i, m := range Models {
		if m == current {
			return Models[(i+1)%len(Models)]
		}
	}
	return Models[0]
}

// KnownModel reports whether id is in the catalogue.
func KnownModel(id string) bool {
	for _, m := range Models {
		if m == id {
			return true
		}
	}
	return false
}
