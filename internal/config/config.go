// Package config loads companion settings from a TOML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Environment variables that override file settings.
const (
	EnvBaseURL      = "ARTSY_BASE_URL"
	EnvDataDir      = "ARTSY_DATA_DIR"
	EnvLogLevel     = "ARTSY_LOG_LEVEL"
	EnvTimestampDSN = "ARTSY_TIMESTAMP_DSN"
)

const (
	defaultConfigPath      = "~/.config/artsy-companion/config.toml"
	defaultDataDir         = "~/.local/share/artsy-companion"
	defaultBaseURL         = "https://csci571-jeannie-project.uw.r.appspot.com"
	defaultListenAddr      = "127.0.0.1:8765"
	defaultRequestTimeout  = 15 * time.Second
	defaultSearchDebounce  = 500 * time.Millisecond
	defaultSearchMinLength = 3
)

// ErrInvalidBaseURL is returned when the configured backend URL cannot be used.
var ErrInvalidBaseURL = errors.New("invalid base URL")

// Config holds the settings shared by the CLI and the UI bridge.
type Config struct {
	BaseURL         string
	DataDir         string
	LogLevel        string
	LogDevelopment  bool
	ListenAddr      string
	RequestTimeout  time.Duration
	SearchDebounce  time.Duration
	SearchMinLength int
	// TimestampDSN selects the timestamp store: empty uses SQLite in DataDir,
	// a postgres:// URL uses PostgreSQL.
	TimestampDSN string
}

type fileConfig struct {
	BaseURL         string `toml:"base_url"`
	DataDir         string `toml:"data_dir"`
	LogLevel        string `toml:"log_level"`
	LogDevelopment  bool   `toml:"log_development"`
	ListenAddr      string `toml:"listen_addr"`
	RequestTimeout  string `toml:"request_timeout"`
	SearchDebounce  string `toml:"search_debounce"`
	SearchMinLength int    `toml:"search_min_length"`
	TimestampDSN    string `toml:"timestamp_dsn"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:         defaultBaseURL,
		DataDir:         mustExpand(defaultDataDir),
		LogLevel:        "info",
		ListenAddr:      defaultListenAddr,
		RequestTimeout:  defaultRequestTimeout,
		SearchDebounce:  defaultSearchDebounce,
		SearchMinLength: defaultSearchMinLength,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return defaultConfigPath
}

// Load reads the config file at path (the default location when empty), falls
// back to defaults when the file is missing, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var raw fileConfig
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := cfg.merge(raw); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required settings are usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}
	if c.SearchMinLength < 1 {
		return fmt.Errorf("search_min_length must be positive, got %d", c.SearchMinLength)
	}
	return nil
}

// CookiePath returns the file that persists the authenticated cookie jar.
func (c Config) CookiePath() string {
	return filepath.Join(c.DataDir, "cookies.json")
}

// TimestampDBPath returns the SQLite file backing the timestamp store.
func (c Config) TimestampDBPath() string {
	return filepath.Join(c.DataDir, "timestamps.db")
}

func (c *Config) merge(raw fileConfig) error {
	if v := strings.TrimSpace(raw.BaseURL); v != "" {
		c.BaseURL = v
	}
	if v := strings.TrimSpace(raw.DataDir); v != "" {
		c.DataDir = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		c.LogLevel = v
	}
	c.LogDevelopment = raw.LogDevelopment
	if v := strings.TrimSpace(raw.ListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := strings.TrimSpace(raw.RequestTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse request_timeout: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := strings.TrimSpace(raw.SearchDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse search_debounce: %w", err)
		}
		c.SearchDebounce = d
	}
	if raw.SearchMinLength != 0 {
		c.SearchMinLength = raw.SearchMinLength
	}
	if v := strings.TrimSpace(raw.TimestampDSN); v != "" {
		c.TimestampDSN = v
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		c.DataDir = mustExpand(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimestampDSN)); v != "" {
		c.TimestampDSN = v
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
