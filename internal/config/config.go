// Package config loads and validates the YAML run configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	Sender      SenderConfig   `yaml:"sender"`
	SMTP        SMTPConfig     `yaml:"smtp"`
	Auth        AuthConfig     `yaml:"auth"`
	Delivery    DeliveryConfig `yaml:"delivery"`
	Dataset     DatasetConfig  `yaml:"dataset"`
	Templates   TemplateConfig `yaml:"templates"`
	Storage     StorageConfig  `yaml:"storage"`
	Attachments []string       `yaml:"attachments"`
	Logging     LoggingConfig  `yaml:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

// SenderConfig identifies the From address on every message.
type SenderConfig struct {
	Email         string `yaml:"email"`
	Name          string `yaml:"name"`
	SignatureFile string `yaml:"signature_file"`
}

// SMTPConfig holds submission endpoint settings.
type SMTPConfig struct {
	Host    string        `yaml:"host"`
	SSLPort int           `yaml:"ssl_port"`
	TLSPort int           `yaml:"tls_port"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig selects the credential source. Password is read from the
// environment variable named by PasswordEnv, never from the file itself.
type AuthConfig struct {
	Kind            string `yaml:"kind"` // password or oauth2
	Username        string `yaml:"username"`
	PasswordEnv     string `yaml:"password_env"`
	CredentialsFile string `yaml:"credentials_file"`
}

// DeliveryConfig paces and bounds the dispatch loop.
type DeliveryConfig struct {
	Delay          time.Duration `yaml:"delay"`
	DailyLimit     int           `yaml:"daily_limit"`
	FlushThreshold int           `yaml:"flush_threshold"`
}

// DatasetConfig describes how rows bind to template variables.
type DatasetConfig struct {
	EmailColumn string            `yaml:"email_column"`
	Defaults    map[string]string `yaml:"defaults"`
	Mapping     map[string]string `yaml:"mapping"` // template variable -> column
}

// TemplateConfig names the message templates. Body templates live in
// separate files so multi-line text stays readable.
type TemplateConfig struct {
	Subject     string `yaml:"subject"`
	BodyFile    string `yaml:"body_file"`
	AltSubject  string `yaml:"alt_subject"`
	AltBodyFile string `yaml:"alt_body_file"`
}

// StorageConfig locates the local databases.
type StorageConfig struct {
	Path        string `yaml:"path"`         // bbolt: history + quota
	ReportsPath string `yaml:"reports_path"` // sqlite: run reports
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MetricsConfig contains the status server settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.SMTP.Host == "" {
		c.SMTP.Host = "smtp.gmail.com"
	}
	if c.SMTP.SSLPort == 0 {
		c.SMTP.SSLPort = 465
	}
	if c.SMTP.TLSPort == 0 {
		c.SMTP.TLSPort = 587
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 15 * time.Second
	}

	if c.Auth.Kind == "" {
		c.Auth.Kind = "password"
	}
	if c.Auth.PasswordEnv == "" {
		c.Auth.PasswordEnv = "MAILMERGE_PASSWORD"
	}

	if c.Delivery.Delay == 0 {
		c.Delivery.Delay = 3 * time.Second
	}
	if c.Delivery.DailyLimit == 0 {
		c.Delivery.DailyLimit = 500
	}
	if c.Delivery.FlushThreshold == 0 {
		c.Delivery.FlushThreshold = 10
	}

	if c.Dataset.EmailColumn == "" {
		c.Dataset.EmailColumn = "email"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/mailmerge.db"
	}
	if c.Storage.ReportsPath == "" {
		c.Storage.ReportsPath = "data/reports.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9091"
	}
}

// Validate reports the first blocking problem with the configuration.
func (c *Config) Validate() error {
	if c.Sender.Email == "" {
		return fmt.Errorf("sender.email is required")
	}

	if c.Templates.Subject == "" {
		return fmt.Errorf("templates.subject is required")
	}
	if c.Templates.BodyFile == "" {
		return fmt.Errorf("templates.body_file is required")
	}

	// Alternate templates travel as a pair or not at all.
	if (c.Templates.AltSubject == "") != (c.Templates.AltBodyFile == "") {
		return fmt.Errorf("templates.alt_subject and templates.alt_body_file must be set together")
	}

	switch c.Auth.Kind {
	case "password":
		if c.Auth.Username == "" {
			return fmt.Errorf("auth.username is required for password auth")
		}
	case "oauth2":
		if c.Auth.CredentialsFile == "" {
			return fmt.Errorf("auth.credentials_file is required for oauth2 auth")
		}
	default:
		return fmt.Errorf("invalid auth.kind: %s (must be password or oauth2)", c.Auth.Kind)
	}

	if c.Delivery.DailyLimit < 0 {
		return fmt.Errorf("delivery.daily_limit must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	for _, path := range c.Attachments {
		if path == "" {
			return fmt.Errorf("attachments must not contain empty paths")
		}
	}

	return nil
}

// Password resolves the SMTP password from the configured environment
// variable. Empty when unset.
func (c *Config) Password() string {
	return os.Getenv(c.Auth.PasswordEnv)
}
