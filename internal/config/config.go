package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the link engine
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	Links       LinksConfig       `toml:"links"`
	Limits      LimitsConfig      `toml:"limits"`
	Auth        AuthConfig        `toml:"auth"`
	BlobStore   BlobStoreConfig   `toml:"blob_store"`
	Entitlement EntitlementConfig `toml:"entitlement"`
	Impressions ImpressionsConfig `toml:"impressions"`
}

// ServerConfig holds HTTP server configuration.
// WriteTimeout stays 0 unless set: the play/download routes hold the
// connection open for the whole blob body, and any fixed write deadline
// cuts streams longer than itself mid-transfer.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	BaseURL      string `toml:"base_url"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"ssl_mode"`
}

// RedisConfig holds Redis configuration for rate-limit counters
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// LinksConfig holds access-link issuance settings
type LinksConfig struct {
	ExpiryHours   int `toml:"expiry_hours"`
	FileCacheSize int `toml:"file_cache_size"`
}

// LimitsConfig holds rate-limit settings per endpoint class
type LimitsConfig struct {
	APIRateLimit      int `toml:"api_rate_limit"`
	APIRateWindowSec  int `toml:"api_rate_window"`
	PlayRateLimit     int `toml:"play_rate_limit"`
	PlayRateWindowSec int `toml:"play_rate_window"`
}

// AuthConfig holds API token configuration.
// Endpoint-specific tokens take priority over the global token; both may
// be empty, in which case the legacy key store and env fallbacks apply.
type AuthConfig struct {
	LinksAPIToken    string `toml:"links_api_token"`
	TrackingAPIToken string `toml:"tracking_api_token"`
	IngestAPIToken   string `toml:"ingest_api_token"`
	GlobalAPIToken   string `toml:"global_api_token"`
	AdminJWTSecret   string `toml:"admin_jwt_secret"`
	AdminJWTHours    int    `toml:"admin_jwt_hours"`
}

// BlobStoreConfig holds the external blob store endpoint
type BlobStoreConfig struct {
	BaseURL    string `toml:"base_url"`
	TimeoutSec int    `toml:"timeout"`
}

// EntitlementConfig holds the external entitlement service endpoint
type EntitlementConfig struct {
	BaseURL    string `toml:"base_url"`
	Enabled    bool   `toml:"enabled"`
	TimeoutSec int    `toml:"timeout"`
}

// ImpressionsConfig holds impression retention settings
type ImpressionsConfig struct {
	RetentionDays   int `toml:"retention_days"`
	CleanupInterval int `toml:"cleanup_interval_hours"`
}

// Load loads configuration from TOML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	return &config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// DatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// LinkExpiry returns the configured link lifetime
func (c *LinksConfig) LinkExpiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

// APIWindow returns the API endpoint rate-limit window
func (c *LimitsConfig) APIWindow() time.Duration {
	return time.Duration(c.APIRateWindowSec) * time.Second
}

// PlayWindow returns the play/download rate-limit window
func (c *LimitsConfig) PlayWindow() time.Duration {
	return time.Duration(c.PlayRateWindowSec) * time.Second
}

// SetDefaults sets default values for config
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Database == "" {
		c.Database.Database = "linkengine"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Links.ExpiryHours == 0 {
		c.Links.ExpiryHours = 24
	}
	if c.Links.FileCacheSize == 0 {
		c.Links.FileCacheSize = 4096
	}
	if c.Limits.APIRateLimit == 0 {
		c.Limits.APIRateLimit = 100
	}
	if c.Limits.APIRateWindowSec == 0 {
		c.Limits.APIRateWindowSec = 3600
	}
	if c.Limits.PlayRateLimit == 0 {
		c.Limits.PlayRateLimit = 60
	}
	if c.Limits.PlayRateWindowSec == 0 {
		c.Limits.PlayRateWindowSec = 60
	}
	if c.Auth.AdminJWTHours == 0 {
		c.Auth.AdminJWTHours = 24
	}
	if c.BlobStore.TimeoutSec == 0 {
		c.BlobStore.TimeoutSec = 30
	}
	if c.Entitlement.TimeoutSec == 0 {
		c.Entitlement.TimeoutSec = 10
	}
	if c.Impressions.RetentionDays == 0 {
		c.Impressions.RetentionDays = 90
	}
	if c.Impressions.CleanupInterval == 0 {
		c.Impressions.CleanupInterval = 24
	}
}
