package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Auth     AuthConfig     `yaml:"auth"`
	Email    EmailConfig    `yaml:"email"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Push     PushConfig     `yaml:"push"`
	Limits   LimitsConfig   `yaml:"limits"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds cache store configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig holds session credential configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// AuthConfig holds magic-link configuration
type AuthConfig struct {
	// EmailDomain is the required suffix for login emails, e.g. "virginia.edu"
	EmailDomain     string `yaml:"email_domain"`
	LinkBaseURL     string `yaml:"link_base_url"`
	LinkTTLMinutes  int    `yaml:"link_ttl_minutes"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
}

// LinkTTL returns the magic link validity window
func (c AuthConfig) LinkTTL() time.Duration {
	return time.Duration(c.LinkTTLMinutes) * time.Minute
}

// SessionTTL returns the session validity window
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// EmailConfig holds outbound mail configuration
type EmailConfig struct {
	// Mode is "smtp" or "log"; log prints links instead of sending
	Mode     string `yaml:"mode"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// CatalogConfig holds external course catalog configuration
type CatalogConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the catalog request deadline
func (c CatalogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PushConfig holds APNs configuration
type PushConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	CertPass string `yaml:"cert_pass"`
	Topic    string `yaml:"topic"`
	Sandbox  bool   `yaml:"sandbox"`
}

// LimitsConfig holds rate limit configuration
type LimitsConfig struct {
	LinkRequestsPerHour int `yaml:"link_requests_per_hour"`
	PostsPerHour        int `yaml:"posts_per_hour"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Auth.LinkTTLMinutes == 0 {
		c.Auth.LinkTTLMinutes = 15
	}
	if c.Auth.SessionTTLHours == 0 {
		c.Auth.SessionTTLHours = 7 * 24
	}
	if c.Catalog.TimeoutSeconds == 0 {
		c.Catalog.TimeoutSeconds = 10
	}
	if c.Limits.LinkRequestsPerHour == 0 {
		c.Limits.LinkRequestsPerHour = 3
	}
	if c.Limits.PostsPerHour == 0 {
		c.Limits.PostsPerHour = 30
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
