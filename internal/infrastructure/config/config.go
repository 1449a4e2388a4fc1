package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Hearth Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Signing  SigningConfig  `yaml:"signing"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-wide settings.
type SiteConfig struct {
	// BaseURL is the externally visible base URL of this service.
	// Used to build the OAuth redirect URI for the linking flow.
	BaseURL string `yaml:"base_url"`
	Name    string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// OAuthConfig contains identity-provider settings for account linking.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// AuthorizeURL is the provider's user-facing authorization page.
	AuthorizeURL string `yaml:"authorize_url"`

	// TokenURL is the provider's code-for-token exchange endpoint.
	TokenURL string `yaml:"token_url"`

	// ProfileURL is the provider's profile endpoint, queried with the
	// access token obtained from TokenURL.
	ProfileURL string `yaml:"profile_url"`
}

// SigningConfig contains the device-credential signing key settings.
//
// Outbound device-agent calls carry a short-lived credential signed with
// this key. The key is asymmetric (ECDSA P-256, PEM-encoded) and versioned:
// KeyID is embedded in every credential so agents can select the matching
// public key during rotation.
type SigningConfig struct {
	// PrivateKeyPath is the filesystem path to a PEM-encoded EC private key.
	PrivateKeyPath string `yaml:"private_key_path"`

	// PrivateKeyPEM holds the key inline (overrides PrivateKeyPath when set).
	// Intended for injection via environment variable, never committed to file.
	PrivateKeyPEM string `yaml:"private_key_pem"`

	// KeyID is the version identifier of the signing key.
	KeyID string `yaml:"key_id"`

	// CredentialTTL is the credential lifetime in seconds.
	CredentialTTL int `yaml:"credential_ttl"`
}

// HistoryConfig contains status-history recording settings (InfluxDB v2).
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HEARTH_SECTION_KEY
// For example: HEARTH_DATABASE_PATH, HEARTH_OAUTH_CLIENT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name: "Hearth Bridge",
		},
		Database: DatabaseConfig{
			Path:        "./data/hearthbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		OAuth: OAuthConfig{
			AuthorizeURL: "https://www.amazon.com/ap/oa",
			TokenURL:     "https://api.amazon.com/auth/o2/token",
			ProfileURL:   "https://api.amazon.com/user/profile",
		},
		Signing: SigningConfig{
			CredentialTTL: 60,
		},
		History: HistoryConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HEARTH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("HEARTH_SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}

	// Database
	if v := os.Getenv("HEARTH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("HEARTH_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HEARTH_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// OAuth - secrets should always come from the environment in production
	if v := os.Getenv("HEARTH_OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("HEARTH_OAUTH_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}

	// Signing key material
	if v := os.Getenv("HEARTH_SIGNING_PRIVATE_KEY"); v != "" {
		cfg.Signing.PrivateKeyPEM = v
	}
	if v := os.Getenv("HEARTH_SIGNING_KEY_ID"); v != "" {
		cfg.Signing.KeyID = v
	}

	// History
	if v := os.Getenv("HEARTH_HISTORY_TOKEN"); v != "" {
		cfg.History.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Absence of any required key is a startup-time misconfiguration; it is
// reported here rather than surfacing as per-request failures later.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.BaseURL == "" {
		errs = append(errs, "site.base_url is required")
	} else if _, err := url.ParseRequestURI(c.Site.BaseURL); err != nil {
		errs = append(errs, "site.base_url is not a valid URL")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// OAuth validation
	if c.OAuth.ClientID == "" {
		errs = append(errs, "oauth.client_id is required")
	}
	if c.OAuth.ClientSecret == "" {
		errs = append(errs, "oauth.client_secret is required")
	}
	if c.OAuth.TokenURL == "" {
		errs = append(errs, "oauth.token_url is required")
	}
	if c.OAuth.ProfileURL == "" {
		errs = append(errs, "oauth.profile_url is required")
	}

	// Signing validation
	if c.Signing.PrivateKeyPath == "" && c.Signing.PrivateKeyPEM == "" {
		errs = append(errs, "signing key is required (signing.private_key_path or HEARTH_SIGNING_PRIVATE_KEY)")
	}
	if c.Signing.KeyID == "" {
		errs = append(errs, "signing.key_id is required")
	}
	if c.Signing.CredentialTTL <= 0 {
		errs = append(errs, "signing.credential_ttl must be positive")
	}

	// History validation (only when enabled)
	if c.History.Enabled {
		if c.History.URL == "" {
			errs = append(errs, "history.url is required when history is enabled")
		}
		if c.History.Bucket == "" {
			errs = append(errs, "history.bucket is required when history is enabled")
		}
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not recognised", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
