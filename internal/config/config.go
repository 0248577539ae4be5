package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/morozRed/codescape/internal/lsp"
)

const (
	FileName = ".codescape.yaml"

	EnvLogLevel    = "CODESCAPE_LOG_LEVEL"
	EnvConcurrency = "CODESCAPE_CONCURRENCY"
	EnvLanguage    = "CODESCAPE_LANGUAGE"
)

// Config is the per-project configuration. Empty fields are filled in by
// Resolve from the codebase itself.
type Config struct {
	Language        string            `yaml:"language,omitempty"`
	Suffixes        []string          `yaml:"suffixes,omitempty"`
	Server          lsp.ServerCommand `yaml:"server,omitempty"`
	Concurrency     int               `yaml:"concurrency"`
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
	SymbolCacheSize int               `yaml:"symbol_cache_size"`
	Ignore          []string          `yaml:"ignore,omitempty"`
	LogLevel        string            `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Concurrency:     4,
		RequestTimeout:  30 * time.Second,
		SymbolCacheSize: 2048,
		LogLevel:        "info",
	}
}

// Load reads <root>/.env (without overriding the environment), then
// <root>/.codescape.yaml over the defaults, then environment overrides.
// A missing file is not an error; unknown keys are.
func Load(root string) (Config, error) {
	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg := Default()
	data, err := os.ReadFile(filepath.Join(root, FileName))
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", FileName, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read %s: %w", FileName, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLanguage)); v != "" {
		c.Language = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvConcurrency)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConcurrency, err)
		}
		c.Concurrency = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.SymbolCacheSize < 1 {
		return fmt.Errorf("symbol_cache_size must be at least 1, got %d", c.SymbolCacheSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// Marshal renders c as the project file.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
