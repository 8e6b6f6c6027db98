// Package config loads keyfold.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	kferrors "github.com/keyfold/keyfold/internal/errors"
)

// DefaultPath is where the CLI looks for configuration when --config is not
// given.
const DefaultPath = "keyfold.yaml"

// Config is the keyfold.yaml structure.
type Config struct {
	MasterKey     MasterKey      `yaml:"master_key"`
	Database      Database       `yaml:"database"`
	Rotation      Rotation       `yaml:"rotation"`
	Notifications []Notification `yaml:"notifications,omitempty"`
	Metrics       Metrics        `yaml:"metrics"`
}

// MasterKey selects where the process-wide encryption key comes from.
type MasterKey struct {
	// Source is one of env, keyring, passphrase.
	Source string `yaml:"source"`

	// EnvVar names the environment variable holding the base64 key when
	// source is env.
	EnvVar string `yaml:"env_var,omitempty"`

	// KeyringService and KeyringUser locate the key in the OS keyring when
	// source is keyring.
	KeyringService string `yaml:"keyring_service,omitempty"`
	KeyringUser    string `yaml:"keyring_user,omitempty"`

	// PassphraseEnv names the environment variable holding the passphrase
	// when source is passphrase; Salt is its base64-encoded salt.
	PassphraseEnv string `yaml:"passphrase_env,omitempty"`
	Salt          string `yaml:"salt,omitempty"`
}

// Database selects the persistence backend.
type Database struct {
	// Driver is memory or postgres.
	Driver string `yaml:"driver"`

	// DSN is the PostgreSQL connection string when driver is postgres.
	DSN string `yaml:"dsn,omitempty"`
}

// Rotation configures the dispatcher and the outbound webhook call.
type Rotation struct {
	// ScanSpec is the cron spec for the due-schedule scan.
	ScanSpec string `yaml:"scan_spec,omitempty"`

	// MaxConcurrent bounds simultaneous rotations.
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`

	// WebhookTimeoutMs is the hard timeout for rotation webhooks.
	WebhookTimeoutMs int `yaml:"webhook_timeout_ms,omitempty"`
}

// Notification configures one event delivery channel.
type Notification struct {
	// Type is log or webhook.
	Type string `yaml:"type"`

	Name string `yaml:"name,omitempty"`

	// URL is the endpoint for webhook channels.
	URL string `yaml:"url,omitempty"`

	// Events limits the channel to specific event types. Empty means all.
	Events []string `yaml:"events,omitempty"`

	Headers map[string]string `yaml:"headers,omitempty"`

	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// Metrics toggles Prometheus metric registration. When enabled, the
// run command serves them on Listen.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// Default returns the configuration used when no file exists: in-memory
// storage with the key taken from KEYFOLD_MASTER_KEY.
func Default() *Config {
	return &Config{
		MasterKey: MasterKey{Source: "env", EnvVar: "KEYFOLD_MASTER_KEY"},
		Database:  Database{Driver: "memory"},
		Rotation:  Rotation{ScanSpec: "@every 1m", MaxConcurrent: 4, WebhookTimeoutMs: 5000},
		Metrics:   Metrics{Listen: ":2112"},
	}
}

// Load reads and validates a configuration file. A missing file at the
// default path falls back to Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return Default(), nil
		}
		if os.IsNotExist(err) {
			return nil, kferrors.ValidationError{Field: "config", Message: "file not found: " + path}
		}
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, kferrors.ValidationError{Field: "config", Message: "malformed YAML: " + err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.MasterKey.Source {
	case "env":
		if c.MasterKey.EnvVar == "" {
			return kferrors.ValidationError{Field: "master_key.env_var", Message: "is required for env source"}
		}
	case "keyring":
		if c.MasterKey.KeyringService == "" || c.MasterKey.KeyringUser == "" {
			return kferrors.ValidationError{Field: "master_key", Message: "keyring_service and keyring_user are required for keyring source"}
		}
	case "passphrase":
		if c.MasterKey.PassphraseEnv == "" || c.MasterKey.Salt == "" {
			return kferrors.ValidationError{Field: "master_key", Message: "passphrase_env and salt are required for passphrase source"}
		}
	default:
		return kferrors.ValidationError{Field: "master_key.source", Message: "must be one of env, keyring, passphrase"}
	}

	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return kferrors.ValidationError{Field: "database.dsn", Message: "is required for postgres driver"}
		}
	default:
		return kferrors.ValidationError{Field: "database.driver", Message: "must be memory or postgres"}
	}

	for i, n := range c.Notifications {
		switch n.Type {
		case "log":
		case "webhook":
			if n.URL == "" {
				return kferrors.ValidationError{
					Field:   fmt.Sprintf("notifications[%d].url", i),
					Message: "is required for webhook channels",
				}
			}
		default:
			return kferrors.ValidationError{
				Field:   fmt.Sprintf("notifications[%d].type", i),
				Message: "must be log or webhook",
			}
		}
	}
	return nil
}

// WebhookTimeout returns the rotation webhook timeout as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	if c.Rotation.WebhookTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.Rotation.WebhookTimeoutMs) * time.Millisecond
}
