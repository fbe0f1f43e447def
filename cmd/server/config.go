// Package main provides the BlazeWatch server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	OpenSearch    OpenSearchConfig    `yaml:"opensearch"`
	History       HistoryConfig       `yaml:"history"`
	Alerting      AlertingConfig      `yaml:"alerting"`
	Auth          AuthConfig          `yaml:"auth"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Destinations  []DestinationConfig `yaml:"destinations"`
	Verbose       bool                `yaml:"-"` // set via CLI flag
}

// ServerConfig contains API server settings.
type ServerConfig struct {
	HTTPAddress        string        `yaml:"http_address"`          // HTTP listen address (default: :8080)
	MetricsAddress     string        `yaml:"metrics_address"`       // Prometheus listen address, empty disables
	HTTPTLS            TLSConfig     `yaml:"http_tls"`              // HTTPS for the API
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"` // API requests per client (default: 600)
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	ExecuteTimeout     time.Duration `yaml:"execute_timeout"` // bound for _execute calls (default: 1m)
}

// TLSConfig contains TLS settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // default: ./data/blazewatch.db
}

// OpenSearchConfig contains settings of the cluster monitors query.
type OpenSearchConfig struct {
	Addresses          []string      `yaml:"addresses"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	InputTimeout       time.Duration `yaml:"input_timeout"` // per search request (default: 30s)
}

// HistoryConfig selects where completed, failed and deleted alerts are archived.
type HistoryConfig struct {
	Backend    string           `yaml:"backend"` // sqlite (default) or clickhouse
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Retention  time.Duration    `yaml:"retention"` // default: 720h
}

// ClickHouseConfig contains ClickHouse connection settings.
type ClickHouseConfig struct {
	Addresses     []string      `yaml:"addresses"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Compression   bool          `yaml:"compression"`
	BatchSize     int           `yaml:"batch_size"`     // archive batch size (default: 100)
	FlushInterval time.Duration `yaml:"flush_interval"` // archive flush interval (default: 5s)
}

// AlertingConfig contains monitor limits and runner settings.
type AlertingConfig struct {
	MaxInputs         int           `yaml:"max_inputs"`
	MaxTriggers       int           `yaml:"max_triggers"`
	MinThrottle       time.Duration `yaml:"min_throttle"`
	MaxThrottle       time.Duration `yaml:"max_throttle"`
	ActionConcurrency int           `yaml:"action_concurrency"` // default: 4
	AlertLoadSize     int           `yaml:"alert_load_size"`    // default: 500
	MonitorsFile      string        `yaml:"monitors_file"`
	WatchMonitors     bool          `yaml:"watch_monitors"`
}

// AuthConfig contains API token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// NotificationsConfig limits outgoing notifications across all destinations.
type NotificationsConfig struct {
	RateLimit int `yaml:"rate_limit"` // per minute, 0 disables
	Burst     int `yaml:"burst"`
}

// DestinationConfig defines a notification destination referenced by actions.
type DestinationConfig struct {
	ID      string                    `yaml:"id"`
	Type    string                    `yaml:"type"` // slack, teams, webhook, email
	Name    string                    `yaml:"name"`
	Slack   *SlackDestinationConfig   `yaml:"slack"`
	Teams   *TeamsDestinationConfig   `yaml:"teams"`
	Webhook *WebhookDestinationConfig `yaml:"webhook"`
	Email   *EmailDestinationConfig   `yaml:"email"`
}

// SlackDestinationConfig configures a Slack incoming webhook.
type SlackDestinationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// TeamsDestinationConfig configures a Teams incoming webhook.
type TeamsDestinationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookDestinationConfig configures a custom webhook.
type WebhookDestinationConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
}

// EmailDestinationConfig configures SMTP delivery.
type EmailDestinationConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values and secrets from the environment.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.setDefaults()
	return cfg
}

// applyEnv overrides secrets with environment variables when set.
func (c *Config) applyEnv() {
	if v := os.Getenv("BLAZEWATCH_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("BLAZEWATCH_OPENSEARCH_PASSWORD"); v != "" {
		c.OpenSearch.Password = v
	}
	if v := os.Getenv("BLAZEWATCH_CLICKHOUSE_PASSWORD"); v != "" {
		c.History.ClickHouse.Password = v
	}
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.ExecuteTimeout == 0 {
		c.Server.ExecuteTimeout = time.Minute
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/blazewatch.db"
	}
	if len(c.OpenSearch.Addresses) == 0 {
		c.OpenSearch.Addresses = []string{"http://localhost:9200"}
	}
	if c.OpenSearch.InputTimeout == 0 {
		c.OpenSearch.InputTimeout = 30 * time.Second
	}
	if c.History.Backend == "" {
		c.History.Backend = "sqlite"
	}
	if c.History.Retention == 0 {
		c.History.Retention = 30 * 24 * time.Hour
	}
	if c.History.ClickHouse.Database == "" {
		c.History.ClickHouse.Database = "blazewatch"
	}
	if c.Alerting.ActionConcurrency == 0 {
		c.Alerting.ActionConcurrency = 4
	}
	if c.Alerting.AlertLoadSize == 0 {
		c.Alerting.AlertLoadSize = 500
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Server.HTTPTLS.Enabled {
		if c.Server.HTTPTLS.CertFile == "" {
			return fmt.Errorf("server.http_tls.cert_file is required when TLS is enabled")
		}
		if c.Server.HTTPTLS.KeyFile == "" {
			return fmt.Errorf("server.http_tls.key_file is required when TLS is enabled")
		}
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (or set BLAZEWATCH_JWT_SECRET)")
	}

	switch c.History.Backend {
	case "sqlite":
	case "clickhouse":
		if len(c.History.ClickHouse.Addresses) == 0 {
			return fmt.Errorf("history.clickhouse.addresses is required for the clickhouse backend")
		}
	default:
		return fmt.Errorf("history.backend must be sqlite or clickhouse, got %q", c.History.Backend)
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}

	a := c.Alerting
	if a.MinThrottle < 0 || a.MaxThrottle < 0 {
		return fmt.Errorf("alerting throttle bounds must not be negative")
	}
	if a.MinThrottle > 0 && a.MaxThrottle > 0 && a.MinThrottle > a.MaxThrottle {
		return fmt.Errorf("alerting.min_throttle must not exceed alerting.max_throttle")
	}
	if a.WatchMonitors && a.MonitorsFile == "" {
		return fmt.Errorf("alerting.monitors_file is required when watch_monitors is set")
	}

	if c.Notifications.RateLimit < 0 || c.Notifications.Burst < 0 {
		return fmt.Errorf("notifications.rate_limit and burst must not be negative")
	}

	seen := make(map[string]struct{}, len(c.Destinations))
	for i, d := range c.Destinations {
		if d.ID == "" {
			return fmt.Errorf("destinations[%d].id is required", i)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("destinations[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = struct{}{}
		if err := d.validate(); err != nil {
			return fmt.Errorf("destinations[%d]: %w", i, err)
		}
	}
	return nil
}

func (d *DestinationConfig) validate() error {
	var ok bool
	switch d.Type {
	case "slack":
		ok = d.Slack != nil
	case "teams":
		ok = d.Teams != nil
	case "webhook":
		ok = d.Webhook != nil
	case "email":
		ok = d.Email != nil
	default:
		return fmt.Errorf("unknown destination type %q", d.Type)
	}
	if !ok {
		return fmt.Errorf("%s section is required for type %s", d.Type, d.Type)
	}
	return nil
}
