// ABOUTME: Configuration loading and parsing for driftline
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete driftline configuration
type Config struct {
	Identity IdentityConfig `yaml:"identity"`
	Remote   RemoteConfig   `yaml:"remote"`
	Database DatabaseConfig `yaml:"database"`
	Vault    VaultConfig    `yaml:"vault"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IdentityConfig identifies the local user against the backend
type IdentityConfig struct {
	OwnerID string `yaml:"owner_id"`
}

// RemoteConfig holds backend connection configuration
type RemoteConfig struct {
	BaseURL   string `yaml:"base_url"`
	JWTSecret string `yaml:"jwt_secret"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// DatabaseConfig holds local cache database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VaultConfig holds credential vault configuration
type VaultConfig struct {
	// DeviceSecretPath is where the device encryption secret lives.
	// Defaults to <database dir>/device.key when empty.
	DeviceSecretPath string `yaml:"device_secret_path"`
}

// SyncConfig holds timing configuration for background reconciliation
type SyncConfig struct {
	RefreshInterval time.Duration `yaml:"-"`

	RefreshIntervalRaw string `yaml:"refresh_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Identity.OwnerID == "" {
		return fmt.Errorf("identity.owner_id is required")
	}

	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Remote.JWTSecret == "" {
		return fmt.Errorf("remote.jwt_secret is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 15 * time.Second
	}
	if c.Sync.RefreshInterval == 0 {
		c.Sync.RefreshInterval = time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Remote.TimeoutRaw != "" {
		cfg.Remote.Timeout, err = time.ParseDuration(cfg.Remote.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing remote.timeout %q: %w", cfg.Remote.TimeoutRaw, err)
		}
	}

	if cfg.Sync.RefreshIntervalRaw != "" {
		cfg.Sync.RefreshInterval, err = time.ParseDuration(cfg.Sync.RefreshIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.refresh_interval %q: %w", cfg.Sync.RefreshIntervalRaw, err)
		}
	}

	return nil
}
