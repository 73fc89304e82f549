// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mailer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Mail     MailConfig     `yaml:"mail"`
	Provider string         `yaml:"provider"`
	SES      SESConfig      `yaml:"ses"`
	Queue    QueueConfig    `yaml:"queue"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Sentry   SentryConfig   `yaml:"sentry"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MailConfig holds the global recipient rules. Empty values are unset.
type MailConfig struct {
	SendAllEmailsTo string `yaml:"send_all_emails_to"`
	CcAllEmailsTo   string `yaml:"cc_all_emails_to"`
	BccAllEmailsTo  string `yaml:"bcc_all_emails_to"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
	// API selects SendRawEmail (v1) or SendEmail with raw content (v2).
	API      string `yaml:"api"`
	Endpoint string `yaml:"endpoint"`
}

// QueueConfig holds the delivery queue configuration.
type QueueConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Driver      string        `yaml:"driver"`
	Name        string        `yaml:"name"`
	MaxAttempts int           `yaml:"max_attempts"`
	UniqueFor   time.Duration `yaml:"unique_for"`
	Workers     int           `yaml:"workers"`
}

// DatabaseConfig holds the Postgres connection used by the river driver.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the Redis connection used by the redis driver.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig holds the metrics server configuration. An empty address
// disables the server.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// SentryConfig holds Sentry error reporting configuration.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// Validate checks the enumerated settings and the connection a queue driver needs.
func (c *Config) Validate() error {
	switch c.Provider {
	case "", "ses", "stdout":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.SES.API {
	case "v1", "v2":
	default:
		return fmt.Errorf("unknown SES API version %q", c.SES.API)
	}

	if !c.Queue.Enabled {
		return nil
	}
	switch c.Queue.Driver {
	case "river":
		if c.Database.URL == "" {
			return errors.New("queue driver river requires DATABASE_URL")
		}
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("queue driver redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}
	return nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SES.API = "v1"
	c.Queue.Driver = "river"
	c.Queue.Name = "mail"
	c.Queue.MaxAttempts = 5
	c.Queue.Workers = 4
	c.Sentry.Environment = "production"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("SEND_ALL_EMAILS_TO"); v != "" {
		c.Mail.SendAllEmailsTo = v
	}
	if v := os.Getenv("CC_ALL_EMAILS_TO"); v != "" {
		c.Mail.CcAllEmailsTo = v
	}
	if v := os.Getenv("BCC_ALL_EMAILS_TO"); v != "" {
		c.Mail.BccAllEmailsTo = v
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}
	if v := os.Getenv("SES_API_VERSION"); v != "" {
		c.SES.API = strings.ToLower(v)
	}
	if v := os.Getenv("SES_ENDPOINT"); v != "" {
		c.SES.Endpoint = v
	}

	if v := os.Getenv("QUEUE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Queue.Enabled = enabled
		}
	}
	if v := os.Getenv("QUEUE_DRIVER"); v != "" {
		c.Queue.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("QUEUE_NAME"); v != "" {
		c.Queue.Name = v
	}
	if v := os.Getenv("QUEUE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.MaxAttempts = n
		}
	}
	if v := os.Getenv("QUEUE_UNIQUE_FOR"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Queue.UniqueFor = d
		}
	}
	if v := os.Getenv("QUEUE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.Workers = n
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}

	if v := os.Getenv("SENTRY_DSN"); v != "" {
		c.Sentry.DSN = v
	}
	if v := os.Getenv("SENTRY_ENVIRONMENT"); v != "" {
		c.Sentry.Environment = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
