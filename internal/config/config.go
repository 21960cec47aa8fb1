// Package config loads the board's settings: defaults, then an optional YAML
// file, then BOARD_* environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends.
const (
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// EnvProduction is the env value that turns on production checks.
const EnvProduction = "production"

// Config holds all board configuration.
type Config struct {
	Env     string `yaml:"env"`
	Addr    string `yaml:"addr"`
	Backend string `yaml:"backend"` // sqlite or supabase

	Database DatabaseConfig `yaml:"database"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Remote   RemoteConfig   `yaml:"remote"`

	// CSRFKey is 64 hex characters. Required in production.
	CSRFKey        string   `yaml:"csrf_key"`
	TrustedOrigins []string `yaml:"trusted_origins"`

	Feed  FeedConfig  `yaml:"feed"`
	Cache CacheConfig `yaml:"cache"`

	RateLimitPerSecond int  `yaml:"rate_limit_per_second"`
	SlowRequestMs      int  `yaml:"slow_request_ms"`
	SlowQueryMs        int  `yaml:"slow_query_ms"`
	DebugPages         bool `yaml:"debug_pages"`

	Logging LoggingConfig `yaml:"logging"`

	// DevAccounts are created in the local backend outside production.
	DevAccounts []DevAccount `yaml:"dev_accounts"`
}

// DatabaseConfig configures the local sqlite backend.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SupabaseConfig points at the hosted backend.
type SupabaseConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
}

// RemoteConfig tunes calls to the hosted backend.
type RemoteConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// FeedConfig tunes the live feed.
type FeedConfig struct {
	RefetchInterval time.Duration `yaml:"refetch_interval"`
}

// CacheConfig tunes the query cache.
type CacheConfig struct {
	GCTime time.Duration `yaml:"gc_time"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DevAccount is a local account seeded for development.
type DevAccount struct {
	Email    string `yaml:"email"`
	UserName string `yaml:"user_name"`
	Password string `yaml:"password"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Env:     "development",
		Addr:    ":8080",
		Backend: BackendSQLite,
		Database: DatabaseConfig{
			Path: "board.db",
		},
		Remote: RemoteConfig{
			Timeout: 10 * time.Second,
		},
		Feed: FeedConfig{
			RefetchInterval: 5 * time.Second,
		},
		Cache: CacheConfig{
			GCTime: 5 * time.Minute,
		},
		RateLimitPerSecond: 10,
		SlowRequestMs:      200,
		SlowQueryMs:        100,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		DevAccounts: []DevAccount{
			{Email: "alice@example.com", UserName: "alice", Password: "board-dev-password"},
			{Email: "bob@example.com", UserName: "bob", Password: "board-dev-password"},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment, then validates it.
// PRE: path may be empty (no file); a missing file is an error only when
// path was given explicitly
// POST: Returns a validated Config
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies BOARD_* environment variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"BOARD_ENV":               &c.Env,
		"BOARD_ADDR":              &c.Addr,
		"BOARD_BACKEND":           &c.Backend,
		"BOARD_DB":                &c.Database.Path,
		"BOARD_SUPABASE_URL":      &c.Supabase.URL,
		"BOARD_SUPABASE_ANON_KEY": &c.Supabase.AnonKey,
		"BOARD_CSRF_KEY":          &c.CSRFKey,
		"BOARD_LOG_LEVEL":         &c.Logging.Level,
		"BOARD_LOG_FORMAT":        &c.Logging.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("BOARD_TRUSTED_ORIGINS"); v != "" {
		c.TrustedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("BOARD_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BOARD_RATE_LIMIT: %w", err)
		}
		c.RateLimitPerSecond = n
	}

	durations := map[string]*time.Duration{
		"BOARD_REMOTE_TIMEOUT":        &c.Remote.Timeout,
		"BOARD_FEED_REFETCH_INTERVAL": &c.Feed.RefetchInterval,
		"BOARD_CACHE_GC_TIME":         &c.Cache.GCTime,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite backend"))
		}
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			errs = append(errs, errors.New("supabase.url and supabase.anon_key are required for the supabase backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid backend: %q (valid: %s, %s)", c.Backend, BackendSQLite, BackendSupabase))
	}

	if c.CSRFKey != "" {
		if key, err := hex.DecodeString(c.CSRFKey); err != nil || len(key) != 32 {
			errs = append(errs, errors.New("csrf_key must be 64 hex characters (32 bytes)"))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("csrf_key is required in production"))
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid logging.format: %q (valid: text, json)", c.Logging.Format))
	}
	if c.Feed.RefetchInterval <= 0 {
		errs = append(errs, errors.New("feed.refetch_interval must be positive"))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, errors.New("remote.timeout must be positive"))
	}
	if c.RateLimitPerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit_per_second must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether production checks apply.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// CSRFKeyBytes returns the CSRF secret. Outside production an unset key is
// replaced by a random one, so forms do not survive a restart.
func (c *Config) CSRFKeyBytes() ([]byte, error) {
	if c.CSRFKey != "" {
		return hex.DecodeString(c.CSRFKey)
	}
	if c.IsProduction() {
		return nil, errors.New("csrf_key is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate CSRF key: %w", err)
	}
	slog.Warn("config_event", "event", "random_csrf_key", "hint", "set BOARD_CSRF_KEY for production")
	return key, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid logging.level: %q", s)
	}
	return l, nil
}
