// Package config handles loading and validating the application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// Accounts lists the POP3 mailboxes to drain.
	Accounts []Account `yaml:"accounts"`
	// Delivery selects where fetched messages go.
	Delivery Delivery `yaml:"delivery"`
	// StatePath is the file path for persisting fetched message UIDs.
	StatePath string `yaml:"state_path"`
	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// IntervalSeconds runs the fetch cycle on a timer when positive;
	// zero means run once and exit.
	IntervalSeconds int `yaml:"interval_seconds"`
	// MetricsListen exposes Prometheus metrics on this address (for
	// example ":9090") when set. Only useful together with an interval.
	MetricsListen string `yaml:"metrics_listen"`
}

// Account holds the settings for a single POP3 mailbox.
type Account struct {
	// Name labels the account in logs, state and maildir folders.
	// Defaults to "user@host".
	Name string `yaml:"name"`
	// Host is the POP3 server to connect to.
	Host string `yaml:"host"`
	// Port defaults to 995 with TLS and 110 without.
	Port int `yaml:"port"`
	// User is the mailbox login name.
	User string `yaml:"user"`
	// Password can be overridden by the POPSYNC_ACCOUNT_<INDEX>_PASSWORD
	// environment variable.
	Password string `yaml:"password"`
	// TLS wraps the connection in TLS.
	TLS bool `yaml:"tls"`
	// TLSVerify is "verify-peer" (default) or "no-verify".
	TLSVerify string `yaml:"tls_verify"`
	// TimeoutSeconds bounds every read and write on the connection.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Keep leaves messages on the server instead of deleting them
	// after delivery.
	Keep bool `yaml:"keep"`
}

// Label returns the account's display name.
func (a Account) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.User + "@" + a.Host
}

// Timeout returns the configured idle timeout as a duration.
func (a Account) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Delivery selects exactly one delivery backend.
type Delivery struct {
	// Maildir is the root directory for local maildir delivery; each
	// account gets a subdirectory named after its label.
	Maildir string `yaml:"maildir"`
	// SMTP forwards fetched messages to another mailbox instead.
	SMTP *SMTPDelivery `yaml:"smtp"`
}

// SMTPDelivery holds SMTP forwarding credentials and settings.
type SMTPDelivery struct {
	// Host is the submission server.
	Host string `yaml:"host"`
	// Port defaults to 587.
	Port int `yaml:"port"`
	// Username authenticates the submission.
	Username string `yaml:"username"`
	// Password can be overridden by POPSYNC_SMTP_PASSWORD.
	Password string `yaml:"password"`
	// To is the address fetched messages are forwarded to.
	To string `yaml:"to"`
}

// Load reads the configuration from the given YAML file path and applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{
		StatePath: "/var/lib/popsync/state.json",
		LogLevel:  "info",
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides replaces config values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POPSYNC_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("POPSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("POPSYNC_MAILDIR"); v != "" {
		cfg.Delivery.Maildir = v
	}
	if cfg.Delivery.SMTP != nil {
		if v := os.Getenv("POPSYNC_SMTP_PASSWORD"); v != "" {
			cfg.Delivery.SMTP.Password = v
		}
	}

	// Override individual account credentials: POPSYNC_ACCOUNT_0_PASSWORD, etc.
	for i := range cfg.Accounts {
		if v := os.Getenv(fmt.Sprintf("POPSYNC_ACCOUNT_%d_USER", i)); v != "" {
			cfg.Accounts[i].User = v
		}
		if v := os.Getenv(fmt.Sprintf("POPSYNC_ACCOUNT_%d_PASSWORD", i)); v != "" {
			cfg.Accounts[i].Password = v
		}
	}
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Port == 0 {
			if cfg.Accounts[i].TLS {
				cfg.Accounts[i].Port = 995
			} else {
				cfg.Accounts[i].Port = 110
			}
		}
		if cfg.Accounts[i].TimeoutSeconds == 0 {
			cfg.Accounts[i].TimeoutSeconds = 30
		}
	}
	if cfg.Delivery.SMTP != nil && cfg.Delivery.SMTP.Port == 0 {
		cfg.Delivery.SMTP.Port = 587
	}
}

// validate checks that all required configuration fields are present.
func validate(cfg *Config) error {
	var errs []string

	if len(cfg.Accounts) == 0 {
		errs = append(errs, "at least one account must be configured")
	}
	for i, a := range cfg.Accounts {
		if a.Host == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].host is required", i))
		}
		if a.User == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].user is required", i))
		}
		if a.Password == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].password is required (set via config or POPSYNC_ACCOUNT_%d_PASSWORD)", i, i))
		}
		switch a.TLSVerify {
		case "", "verify-peer", "no-verify":
		default:
			errs = append(errs, fmt.Sprintf("accounts[%d].tls_verify must be %q or %q", i, "verify-peer", "no-verify"))
		}
	}

	switch {
	case cfg.Delivery.Maildir == "" && cfg.Delivery.SMTP == nil:
		errs = append(errs, "delivery.maildir or delivery.smtp must be configured")
	case cfg.Delivery.Maildir != "" && cfg.Delivery.SMTP != nil:
		errs = append(errs, "delivery.maildir and delivery.smtp are mutually exclusive")
	case cfg.Delivery.SMTP != nil:
		s := cfg.Delivery.SMTP
		if s.Host == "" {
			errs = append(errs, "delivery.smtp.host is required")
		}
		if s.Username == "" {
			errs = append(errs, "delivery.smtp.username is required")
		}
		if s.Password == "" {
			errs = append(errs, "delivery.smtp.password is required (set via config or POPSYNC_SMTP_PASSWORD)")
		}
		if s.To == "" {
			errs = append(errs, "delivery.smtp.to is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("missing required fields:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
