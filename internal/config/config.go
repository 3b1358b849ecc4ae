// ABOUTME: Configuration loading and parsing for the keep server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied by Load when a field is left empty.
const (
	DefaultIdleTimeout      = time.Hour
	DefaultReapInterval     = time.Minute
	DefaultProtectedPrefix  = "core-"
	DefaultTelnetAddr       = "0.0.0.0:4000"
	DefaultShutdownDeadline = 5 * time.Second
	DefaultTokenTTL         = 24 * time.Hour
	minTokenSecretLen       = 32
)

// Config represents the complete keep configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Services  ServicesConfig  `yaml:"services"`
	Behaviors BehaviorsConfig `yaml:"behaviors"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds listener addresses. Empty websocket or health
// addresses disable those services.
type ServerConfig struct {
	TelnetAddr    string `yaml:"telnet_addr"`
	WebSocketAddr string `yaml:"websocket_addr"`
	HealthAddr    string `yaml:"health_addr"`
	Banner        string `yaml:"banner"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionsConfig holds session timing configuration
type SessionsConfig struct {
	IdleTimeout  time.Duration `yaml:"-"`
	ReapInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IdleTimeoutRaw  string `yaml:"idle_timeout"`
	ReapIntervalRaw string `yaml:"reap_interval"`
}

// ServicesConfig controls the service supervisor.
type ServicesConfig struct {
	// ProtectedPrefixes marks every service whose name starts with one of
	// these prefixes as protected from stop/restart through commands.
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
	// Disabled lists services that are registered but not started at boot.
	Disabled []string `yaml:"disabled"`
}

// AuthConfig holds the login token secret. Token login is disabled when
// the secret is empty.
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// BehaviorsConfig points at the behavior-parent definitions file.
type BehaviorsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields. Relative behavior paths are resolved
// against the directory holding the config file.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.TelnetAddr == "" && !c.Tailscale.Enabled {
		c.Server.TelnetAddr = DefaultTelnetAddr
	}
	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = DefaultIdleTimeout
	}
	if c.Sessions.ReapInterval == 0 {
		c.Sessions.ReapInterval = DefaultReapInterval
	}
	if c.Services.ProtectedPrefixes == nil {
		c.Services.ProtectedPrefixes = []string{DefaultProtectedPrefix}
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Behaviors.Path != "" && !filepath.IsAbs(c.Behaviors.Path) {
		c.Behaviors.Path = filepath.Join(baseDir, c.Behaviors.Path)
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.TelnetAddr == "" {
		return fmt.Errorf("server.telnet_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Sessions.IdleTimeout < 0 {
		return fmt.Errorf("sessions.idle_timeout must not be negative")
	}
	if c.Sessions.ReapInterval < 0 {
		return fmt.Errorf("sessions.reap_interval must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Auth.TokenSecret != "" && len(c.Auth.TokenSecret) < minTokenSecretLen {
		return fmt.Errorf("auth.token_secret must be at least %d bytes", minTokenSecretLen)
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must not be negative")
	}

	if c.Behaviors.Watch && c.Behaviors.Path == "" {
		return fmt.Errorf("behaviors.path is required when behaviors.watch is enabled")
	}

	return nil
}

// IsDisabled reports whether the named service should not be started at boot.
func (c *Config) IsDisabled(service string) bool {
	for _, name := range c.Services.Disabled {
		if name == service {
			return true
		}
	}
	return false
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.IdleTimeoutRaw != "" {
		cfg.Sessions.IdleTimeout, err = time.ParseDuration(cfg.Sessions.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Sessions.IdleTimeoutRaw, err)
		}
	}

	if cfg.Sessions.ReapIntervalRaw != "" {
		cfg.Sessions.ReapInterval, err = time.ParseDuration(cfg.Sessions.ReapIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reap_interval %q: %w", cfg.Sessions.ReapIntervalRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	return nil
}

// Starter returns the YAML written by `keep init`.
func Starter(dbPath string) string {
	return fmt.Sprintf(`server:
  telnet_addr: "%s"
  websocket_addr: "127.0.0.1:4001"
  health_addr: "127.0.0.1:4002"

database:
  path: "%s"

logging:
  level: "info"
  format: "text"

sessions:
  idle_timeout: "1h"
  reap_interval: "1m"

services:
  protected_prefixes:
    - "%s"

behaviors:
  path: "behaviors.toml"
  watch: true

# auth:
#   token_secret: "${KEEP_TOKEN_SECRET}"
#   token_ttl: "24h"
`, DefaultTelnetAddr, dbPath, DefaultProtectedPrefix)
}
