// Package config loads mutacache.yaml and applies MUTACACHE_* environment
// overrides on top of it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/mutation"
)

// FileConfig represents the top-level mutacache.yaml structure.
type FileConfig struct {
	LogLevel    string            `yaml:"log_level"`
	HTTP        HTTPConfig        `yaml:"http"`
	Mutation    MutationConfig    `yaml:"mutation"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Cache       cache.Config      `yaml:"cache"`
	Journal     JournalConfig     `yaml:"journal"`
	// Resources seeds the in-memory data provider, keyed by resource name.
	Resources map[string][]map[string]any `yaml:"resources,omitempty"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MutationConfig struct {
	// DefaultMode applies when neither the hook nor the call names one.
	DefaultMode string        `yaml:"default_mode"`
	GraceWindow time.Duration `yaml:"grace_window"`
	// AutoConfirm confirms undoable mutations left undecided this long.
	// Zero waits for an explicit decision.
	AutoConfirm time.Duration `yaml:"auto_confirm"`
}

type AggregationConfig struct {
	// Window is the length of one tick. Zero flushes on the next
	// scheduler turn.
	Window time.Duration `yaml:"window"`
}

type JournalConfig struct {
	Path           string        `yaml:"path"`
	Retention      time.Duration `yaml:"retention"`
	RedactionHints []string      `yaml:"redaction_hints,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *FileConfig {
	return &FileConfig{
		LogLevel: "info",
		HTTP:     HTTPConfig{Addr: "127.0.0.1:8080"},
		Mutation: MutationConfig{
			DefaultMode: string(mutation.Pessimistic),
			GraceWindow: mutation.DefaultGraceWindow,
		},
		Aggregation: AggregationConfig{Window: time.Millisecond},
		Cache:       cache.DefaultConfig(),
		Journal: JournalConfig{
			Path:      DefaultDataPath("mutacache.db"),
			Retention: 7 * 24 * time.Hour,
		},
	}
}

// DefaultDataPath returns ~/.mutacache/<filename>, falling back to a
// CWD-relative path if the home directory can't be resolved.
func DefaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return filepath.Join(home, ".mutacache", filename)
}

// Load reads path when it exists, applies the environment and validates
// the result. A missing file yields the defaults.
func Load(path string) (*FileConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse yaml: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads, parses, and validates a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data over the defaults.
func Parse(data []byte) (*FileConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("MUTACACHE_LOG_LEVEL", &cfg.LogLevel)
	str("MUTACACHE_HTTP_ADDR", &cfg.HTTP.Addr)
	str("MUTACACHE_DEFAULT_MODE", &cfg.Mutation.DefaultMode)
	str("MUTACACHE_JOURNAL_PATH", &cfg.Journal.Path)
	if v := getenv("MUTACACHE_CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MUTACACHE_CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.Cache.MaxEntries = n
	}
	for key, dst := range map[string]*time.Duration{
		"MUTACACHE_GRACE_WINDOW":       &cfg.Mutation.GraceWindow,
		"MUTACACHE_AUTO_CONFIRM":       &cfg.Mutation.AutoConfirm,
		"MUTACACHE_AGGREGATION_WINDOW": &cfg.Aggregation.Window,
		"MUTACACHE_CACHE_STALE_TIME":   &cfg.Cache.StaleTime,
		"MUTACACHE_JOURNAL_RETENTION":  &cfg.Journal.Retention,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *FileConfig) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mode returns the parsed default mutation mode. validate has already
// rejected unknown names.
func (c *FileConfig) Mode() mutation.Mode {
	m, _ := mutation.ParseMode(c.Mutation.DefaultMode)
	if m == "" {
		return mutation.Pessimistic
	}
	return m
}
