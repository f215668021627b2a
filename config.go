package sessionx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every configuration variable.
const EnvPrefix = "CRCTL_"

const (
	defaultBaseURL = "http://localhost:8000"
	appName        = "crctl"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config describes how the client reaches the backend and where it keeps
// the session.
type Config struct {
	BaseURL         string        `env:"BASE_URL" envDefault:"http://localhost:8000"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`
	Store           string        `env:"STORE" envDefault:"file"`
	CredentialsPath string        `env:"CREDENTIALS_PATH"`
	RedisURL        string        `env:"REDIS_URL"`
	RedisPrefix     string        `env:"REDIS_PREFIX" envDefault:"crctl"`
	AppTitle        string        `env:"APP_TITLE"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"warn"`
	Color           bool          `env:"COLOR" envDefault:"true"`
	// Dev signs sessions locally instead of calling the backend.
	Dev bool `env:"DEV"`
}

// LoadConfig reads and validates the configuration from CRCTL_* environment
// variables.
func LoadConfig() (Config, error) {
	cfg, err := ParseConfig()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig reads the environment without validating, for callers that
// override fields before calling Apply.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize sets default values for optional fields.
func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreFile
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = defaultRedisPrefix
	}
	if c.AppTitle == "" {
		c.AppTitle = DefaultAppTitle
	}
}

// validate ensures the configuration is usable.
func (c Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		return fmt.Errorf("base url: %w", err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("base url %q must use http or https", c.BaseURL)
	case u.Host == "":
		return fmt.Errorf("base url %q has no host", c.BaseURL)
	}
	switch c.Store {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis store requires CRCTL_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Apply normalizes and validates c after flags have overridden it.
func (c *Config) Apply() error {
	c.normalize()
	return c.validate()
}

// ParseLogLevel maps a level name onto a slog level. Empty means warn.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("unknown log level %q", level)
	}
}
