// Package config provides configuration loading and management for the
// trials API server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPageSize is the upstream page size used when none is configured
	DefaultPageSize = 1000

	// DefaultSyncInterval is the pause between sync walker iterations
	DefaultSyncInterval = 120 * time.Second

	// DefaultAggregationInterval is the pause between aggregate recomputes
	DefaultAggregationInterval = 60 * time.Second

	// DefaultAccessTokenTTL is the lifetime of issued access tokens
	DefaultAccessTokenTTL = 30 * time.Minute
)

// Environment variable names for secrets that should not live in the
// config file.
const (
	EnvStudiesDBPassword   = "TRIALS_STUDIES_DB_PASSWORD"
	EnvAnalyticsDBPassword = "TRIALS_ANALYTICS_DB_PASSWORD"
	EnvJWTSecret           = "TRIALS_JWT_SECRET"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Upstream configures the external studies registry to ingest from
	Upstream UpstreamConfig `yaml:"upstream"`

	// Aggregation configures the periodic statistics recompute
	Aggregation AggregationConfig `yaml:"aggregation,omitempty"`

	// StudiesDatabase is the primary store for ingested study records
	StudiesDatabase *DatabaseConfig `yaml:"studiesDatabase"`

	// AnalyticsDatabase is the derived store for aggregate statistics
	AnalyticsDatabase *DatabaseConfig `yaml:"analyticsDatabase"`

	// Auth configures token issuance for the management API
	Auth AuthConfig `yaml:"auth,omitempty"`
}

// UpstreamConfig defines the external registry endpoint and sync cadence
type UpstreamConfig struct {
	// Endpoint is the base API URL, e.g. "https://clinicaltrials.gov/api/v2"
	Endpoint string `yaml:"endpoint"`

	// PageSize is the number of studies requested per page
	PageSize int `yaml:"pageSize,omitempty"`

	// Interval is the pause between walker iterations (e.g. "120s")
	Interval string `yaml:"interval,omitempty"`
}

// AggregationConfig defines the statistics recompute cadence
type AggregationConfig struct {
	// Interval is the pause between recompute runs (e.g. "60s")
	Interval string `yaml:"interval,omitempty"`
}

// AuthConfig defines settings for the auth endpoints
type AuthConfig struct {
	// SecretFile is the path to a file containing the JWT signing secret.
	// Falls back to the TRIALS_JWT_SECRET environment variable.
	SecretFile string `yaml:"secretFile,omitempty"`

	// AccessTokenTTL is the lifetime of issued tokens (e.g. "30m")
	AccessTokenTTL string `yaml:"accessTokenTTL,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// This is the recommended approach for production deployments.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// PasswordEnv is the environment variable consulted when PasswordFile
	// is not set. Populated with a per-database default during validation.
	PasswordEnv string `yaml:"passwordEnv,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the PasswordEnv environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	// Priority 1: Read from file if specified
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		// Trim whitespace (including newlines) from file content
		return strings.TrimSpace(string(data)), nil
	}

	// Priority 2: Check environment variable
	if d.PasswordEnv != "" {
		if envPassword := os.Getenv(d.PasswordEnv); envPassword != "" {
			return envPassword, nil
		}
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or the %s environment variable",
		d.PasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper
// password handling. The password is URL-escaped to handle special
// characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	// URL-escape the password to handle special characters
	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SyncInterval returns the parsed walker interval
func (c *Config) SyncInterval() time.Duration {
	return parseDurationOr(c.Upstream.Interval, DefaultSyncInterval)
}

// AggregationInterval returns the parsed recompute interval
func (c *Config) AggregationInterval() time.Duration {
	return parseDurationOr(c.Aggregation.Interval, DefaultAggregationInterval)
}

// AccessTokenTTL returns the parsed token lifetime
func (c *Config) AccessTokenTTL() time.Duration {
	return parseDurationOr(c.Auth.AccessTokenTTL, DefaultAccessTokenTTL)
}

// PageSize returns the upstream page size, applying the default
func (c *Config) PageSize() int {
	if c.Upstream.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.Upstream.PageSize
}

// GetJWTSecret returns the JWT signing secret using the same file-then-env
// priority as database passwords.
func (c *Config) GetJWTSecret() ([]byte, error) {
	if c.Auth.SecretFile != "" {
		cleanPath := filepath.Clean(c.Auth.SecretFile)
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT secret from file %s: %w", c.Auth.SecretFile, err)
		}
		return []byte(strings.TrimSpace(string(data))), nil
	}

	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		return []byte(secret), nil
	}

	return nil, fmt.Errorf("no JWT secret configured: set auth.secretFile or the %s environment variable", EnvJWTSecret)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	if err := validateInterval(c.Aggregation.Interval, "aggregation.interval"); err != nil {
		return err
	}

	if err := validateInterval(c.Auth.AccessTokenTTL, "auth.accessTokenTTL"); err != nil {
		return err
	}

	if c.StudiesDatabase == nil {
		return fmt.Errorf("studiesDatabase configuration is required")
	}
	if err := c.StudiesDatabase.validate("studiesDatabase", EnvStudiesDBPassword); err != nil {
		return err
	}

	if c.AnalyticsDatabase == nil {
		return fmt.Errorf("analyticsDatabase configuration is required")
	}
	return c.AnalyticsDatabase.validate("analyticsDatabase", EnvAnalyticsDBPassword)
}

// validateUpstream validates the upstream source configuration
func (c *Config) validateUpstream() error {
	if c.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream.endpoint is required")
	}

	parsed, err := url.Parse(c.Upstream.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("upstream.endpoint must be a valid URL, got %q", c.Upstream.Endpoint)
	}

	if c.Upstream.PageSize < 0 {
		return fmt.Errorf("upstream.pageSize must be positive, got %d", c.Upstream.PageSize)
	}

	return validateInterval(c.Upstream.Interval, "upstream.interval")
}

// validateInterval checks that a duration string, when present, parses
func validateInterval(value, field string) error {
	if value == "" {
		return nil
	}
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g. '60s', '2m'): %w", field, err)
	}
	return nil
}

// validate checks the required database connection fields and fills in the
// per-database password environment variable default.
func (d *DatabaseConfig) validate(prefix, defaultPasswordEnv string) error {
	if d.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if d.Port == 0 {
		return fmt.Errorf("%s.port is required", prefix)
	}
	if d.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if d.Database == "" {
		return fmt.Errorf("%s.database is required", prefix)
	}

	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("%s.connMaxLifetime must be a valid duration: %w", prefix, err)
		}
	}

	if d.PasswordEnv == "" {
		d.PasswordEnv = defaultPasswordEnv
	}

	return nil
}
