// Package config loads console settings from PC_-prefixed environment
// variables and lets command-line flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "PC_"

// AppName names the config and runtime directories.
const AppName = "product-console"

// Token store backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	APIBaseURL        string        `env:"API_BASE_URL" envDefault:"https://dummyjson.com"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	PageSize          int           `env:"PAGE_SIZE" envDefault:"10"`
	SearchDebounce    time.Duration `env:"SEARCH_DEBOUNCE" envDefault:"400ms"`
	SessionLengthMins int           `env:"SESSION_LENGTH_MINS" envDefault:"60"`
	MetricsAddr       string        `env:"METRICS_ADDR"`

	Log        LogConfig        `envPrefix:"LOG_"`
	TokenStore TokenStoreConfig `envPrefix:"TOKEN_STORE_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	Postgres   PostgresConfig   `envPrefix:"POSTGRES_"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"warn"`
	Dev   bool   `env:"DEV" envDefault:"false"`
}

type TokenStoreConfig struct {
	// Backend holds the persistent lifetime; the session lifetime is always a
	// file under SessionDir.
	Backend    string `env:"BACKEND" envDefault:"file"`
	Dir        string `env:"DIR"`
	SessionDir string `env:"SESSION_DIR"`
	Seal       bool   `env:"SEAL" envDefault:"false"`
	// Passphrase, when set, derives the sealing key instead of a key file.
	Passphrase string `env:"PASSPHRASE"`
	Namespace  string `env:"NAMESPACE" envDefault:"default"`
}

type RedisConfig struct {
	Addr    string        `env:"ADDR" envDefault:"localhost:6379"`
	DB      int           `env:"DB" envDefault:"0"`
	Prefix  string        `env:"PREFIX" envDefault:"product-console:"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

type PostgresConfig struct {
	DSN string `env:"DSN"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads environ instead of the process environment when non-nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.TokenStore.Dir == "" {
		cfg.TokenStore.Dir = ConfigDir()
	}
	if cfg.TokenStore.SessionDir == "" {
		cfg.TokenStore.SessionDir = RuntimeDir()
	}
	return cfg, nil
}

// BindFlags registers the global flags on fs with the current values as
// defaults, so parsed flags override the environment.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.APIBaseURL, "api", c.APIBaseURL, "remote API base URL")
	fs.DurationVar(&c.HTTPTimeout, "timeout", c.HTTPTimeout, "HTTP request timeout")
	fs.IntVar(&c.PageSize, "page-size", c.PageSize, "rows per page")
	fs.DurationVar(&c.SearchDebounce, "debounce", c.SearchDebounce, "search debounce in the console")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve /metrics on this address (empty = off)")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug|info|warn|error")
	fs.BoolVar(&c.Log.Dev, "log-dev", c.Log.Dev, "human-readable logs")
	fs.StringVar(&c.TokenStore.Backend, "store", c.TokenStore.Backend, "persistent token store: file|redis|postgres|memory")
	fs.StringVar(&c.TokenStore.Dir, "store-dir", c.TokenStore.Dir, "directory of the file token store")
	fs.BoolVar(&c.TokenStore.Seal, "seal", c.TokenStore.Seal, "encrypt cached tokens at rest")
}

// Validate checks values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api base url %q must be an absolute http(s) URL", c.APIBaseURL))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page size must be positive, got %d", c.PageSize))
	}
	if c.SearchDebounce < 0 {
		errs = append(errs, errors.New("search debounce must not be negative"))
	}
	if c.SessionLengthMins <= 0 {
		errs = append(errs, errors.New("session length must be positive"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	switch c.TokenStore.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis backend needs PC_REDIS_ADDR"))
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres backend needs PC_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token store backend %q", c.TokenStore.Backend))
	}
	return errors.Join(errs...)
}

// ConfigDir is $XDG_CONFIG_HOME/product-console, or ~/.config/product-console.
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", AppName)
}

// RuntimeDir is $XDG_RUNTIME_DIR/product-console. Without XDG_RUNTIME_DIR it
// falls back to a per-user directory under the system temp dir.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, AppName)
	}
	return filepath.Join(os.TempDir(), AppName+"-"+strconv.Itoa(os.Getuid()))
}
