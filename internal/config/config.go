// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/streamchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete streamchat configuration file.
type Config struct {
	API     APIConfig     `toml:"api" json:"api" yaml:"api"`
	Chat    ChatConfig    `toml:"chat" json:"chat" yaml:"chat"`
	Theme   ThemeConfig   `toml:"theme" json:"theme" yaml:"theme"`
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`
	Scroll  ScrollConfig  `toml:"scroll" json:"scroll" yaml:"scroll"`
	Log     LogConfig     `toml:"log" json:"log" yaml:"log"`
}

// APIConfig describes the completion endpoint.
type APIConfig struct {
	// Endpoint is the base URL; /chat/completions is appended to it.
	Endpoint string `toml:"endpoint" json:"endpoint" yaml:"endpoint"`
	// Key is sent as a bearer token. Never logged.
	Key   string `toml:"key" json:"key" yaml:"key"`
	Model string `toml:"model" json:"model" yaml:"model"`
	// Temperature is only sent when set.
	Temperature *float64 `toml:"temperature,omitempty" json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// ChatConfig controls request building and persistence cadence.
type ChatConfig struct {
	SystemPrompt    string `toml:"system_prompt" json:"system_prompt" yaml:"system_prompt"`
	EnableStreaming bool   `toml:"enable_streaming" json:"enable_streaming" yaml:"enable_streaming"`
	EnableMarkdown  bool   `toml:"enable_markdown" json:"enable_markdown" yaml:"enable_markdown"`
	ShowTimestamp   bool   `toml:"show_timestamp" json:"show_timestamp" yaml:"show_timestamp"`
	// MaxRetries is how many extra attempts a request gets before any
	// response byte arrives. Zero disables retries.
	MaxRetries int `toml:"max_retries" json:"max_retries" yaml:"max_retries"`
	// PersistIntervalMS throttles saves while a reply streams in.
	PersistIntervalMS int `toml:"persist_interval_ms" json:"persist_interval_ms" yaml:"persist_interval_ms"`
}

// ThemeConfig holds display preferences.
type ThemeConfig struct {
	PrimaryColor string `toml:"primary_color" json:"primary_color" yaml:"primary_color"`
	// DarkMode is "auto", "dark" or "light".
	DarkMode string `toml:"dark_mode" json:"dark_mode" yaml:"dark_mode"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `toml:"backend" json:"backend" yaml:"backend"`
	// Path is a directory for "file" and a database file for "sqlite".
	// Empty means the default under ~/.streamchat.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// ScrollConfig tunes the auto-scroll controller.
type ScrollConfig struct {
	// Threshold is the distance from the bottom, in lines, inside which new
	// content keeps the view pinned to the bottom.
	Threshold  int `toml:"threshold" json:"threshold" yaml:"threshold"`
	IntervalMS int `toml:"interval_ms" json:"interval_ms" yaml:"interval_ms"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `toml:"level" json:"level" yaml:"level"`
	// File, when set, receives log output instead of stderr. The TUI needs
	// this because stderr shares the terminal.
	File string `toml:"file" json:"file" yaml:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		},
		Chat: ChatConfig{
			SystemPrompt:      "You are a helpful AI assistant.",
			EnableStreaming:   true,
			EnableMarkdown:    true,
			ShowTimestamp:     true,
			MaxRetries:        2,
			PersistIntervalMS: 500,
		},
		Theme: ThemeConfig{
			PrimaryColor: "#49D9FD",
			DarkMode:     "auto",
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Scroll: ScrollConfig{
			Threshold:  3,
			IntervalMS: 75,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns ~/.streamchat.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".streamchat"), nil
}

// CandidatePaths returns the config files Load tries, in order.
func CandidatePaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.json"),
		filepath.Join(dir, "config.yaml"),
	}, nil
}

// ensureSecurePermissions tightens a config file to 0600. It may hold the
// API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the first config file that exists, applies environment
// overrides and validates the result. It returns the path it used, or ""
// when running on defaults.
func Load() (*Config, string, error) {
	paths, err := CandidatePaths()
	if err != nil {
		return nil, "", err
	}
	for _, path := range paths {
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, err := LoadFromPath(path)
			return cfg, path, err
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}
	return cfg, "", nil
}

// LoadFromPath loads a specific file. The format follows the extension;
// anything that is not .json, .yaml or .yml is read as TOML. Keys missing
// from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not secure config file", "path", path, "err", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read JSON file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read YAML file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML file %s: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
		}
	}
	return nil
}

// SetDefaults fills values that must never be empty.
func (c *Config) SetDefaults() {
	d := Default()

	c.API.Endpoint = strings.TrimSpace(c.API.Endpoint)
	c.API.Key = strings.TrimSpace(c.API.Key)
	if c.API.Endpoint == "" {
		c.API.Endpoint = d.API.Endpoint
	}
	if c.API.Model == "" {
		c.API.Model = d.API.Model
	}
	if c.Chat.PersistIntervalMS == 0 {
		c.Chat.PersistIntervalMS = d.Chat.PersistIntervalMS
	}
	if c.Theme.PrimaryColor == "" {
		c.Theme.PrimaryColor = d.Theme.PrimaryColor
	}
	if c.Theme.DarkMode == "" {
		c.Theme.DarkMode = d.Theme.DarkMode
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Scroll.Threshold == 0 {
		c.Scroll.Threshold = d.Scroll.Threshold
	}
	if c.Scroll.IntervalMS == 0 {
		c.Scroll.IntervalMS = d.Scroll.IntervalMS
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# streamchat configuration file\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, []byte(sb.String()), 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// Environment variables read by ApplyEnvOverrides.
const (
	EnvAPIEndpoint    = "STREAMCHAT_API_ENDPOINT"
	EnvAPIKey         = "STREAMCHAT_API_KEY"
	EnvModel          = "STREAMCHAT_MODEL"
	EnvSystemPrompt   = "STREAMCHAT_SYSTEM_PROMPT"
	EnvTemperature    = "STREAMCHAT_TEMPERATURE"
	EnvLogLevel       = "STREAMCHAT_LOG_LEVEL"
	EnvStorageBackend = "STREAMCHAT_STORAGE_BACKEND"
	EnvStoragePath    = "STREAMCHAT_STORAGE_PATH"
)

// ApplyEnvOverrides applies STREAMCHAT_* environment variables on top of
// the file values. Unparseable numbers are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvAPIEndpoint); v != "" {
		c.API.Endpoint = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.API.Model = v
	}
	if v := os.Getenv(EnvSystemPrompt); v != "" {
		c.Chat.SystemPrompt = v
	}
	if v := os.Getenv(EnvTemperature); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.API.Temperature = &t
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvStorageBackend); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		c.Storage.Path = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and reports all problems at once.
// A missing API key is not an error here; sending reports it.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.API.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "api.endpoint",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[/path]", c.API.Endpoint),
		})
	}
	if strings.TrimSpace(c.API.Model) == "" {
		errs = append(errs, ValidationError{Field: "api.model", Message: "must not be empty"})
	}
	if t := c.API.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, ValidationError{
			Field:   "api.temperature",
			Message: fmt.Sprintf("%g out of range, must be between 0 and 2", *t),
		})
	}

	if c.Chat.MaxRetries < 0 || c.Chat.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_retries",
			Message: fmt.Sprintf("%d out of range, must be between 0 and 10", c.Chat.MaxRetries),
		})
	}
	if c.Chat.PersistIntervalMS < 0 {
		errs = append(errs, ValidationError{Field: "chat.persist_interval_ms", Message: "must not be negative"})
	}

	switch strings.ToLower(c.Theme.DarkMode) {
	case "auto", "dark", "light":
	default:
		errs = append(errs, ValidationError{
			Field:   "theme.dark_mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: auto, dark, light", c.Theme.DarkMode),
		})
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite, memory", c.Storage.Backend),
		})
	}

	if c.Scroll.Threshold < 0 {
		errs = append(errs, ValidationError{Field: "scroll.threshold", Message: "must not be negative"})
	}
	if c.Scroll.IntervalMS < 0 {
		errs = append(errs, ValidationError{Field: "scroll.interval_ms", Message: "must not be negative"})
	}

	if _, err := log.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error, fatal", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Settings returns the runtime settings described by this config.
func (c *Config) Settings() Settings {
	s := Settings{
		APIEndpoint:  strings.TrimRight(c.API.Endpoint, "/"),
		APIKey:       c.API.Key,
		Model:        c.API.Model,
		SystemPrompt: c.Chat.SystemPrompt,
		Theme: Theme{
			PrimaryColor: c.Theme.PrimaryColor,
			DarkMode:     c.Theme.DarkMode,
		},
		EnableMarkdown:  c.Chat.EnableMarkdown,
		EnableStreaming: c.Chat.EnableStreaming,
		ShowTimestamp:   c.Chat.ShowTimestamp,
	}
	if c.API.Temperature != nil {
		t := *c.API.Temperature
		s.Temperature = &t
	}
	return s
}
