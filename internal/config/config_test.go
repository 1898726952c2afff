package config

import (
	"os"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.yml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - host: pop.example.com
    user: alice@example.com
    password: secret-1
    tls: true
  - host: pop.example.org
    user: bob@example.org
    password: secret-2
delivery:
  maildir: /var/mail/popsync
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(cfg.Accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(cfg.Accounts))
	}
	if cfg.Accounts[0].Port != 995 {
		t.Errorf("expected default TLS port 995, got %d", cfg.Accounts[0].Port)
	}
	if cfg.Accounts[1].Port != 110 {
		t.Errorf("expected default plain port 110, got %d", cfg.Accounts[1].Port)
	}
	if cfg.Accounts[0].TimeoutSeconds != 30 {
		t.Errorf("expected default timeout 30s, got %d", cfg.Accounts[0].TimeoutSeconds)
	}
	if cfg.Accounts[0].Label() != "alice@example.com@pop.example.com" {
		t.Errorf("unexpected default label %q", cfg.Accounts[0].Label())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
}

func TestLoadSMTPDelivery(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - host: pop.example.com
    user: alice
    password: s
delivery:
  smtp:
    host: smtp.example.com
    username: alice@example.com
    password: smtp-secret
    to: archive@example.com
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Delivery.SMTP.Port != 587 {
		t.Errorf("expected default smtp port 587, got %d", cfg.Delivery.SMTP.Port)
	}
}

func TestLoadNoAccounts(t *testing.T) {
	path := writeConfig(t, `
accounts: []
delivery:
  maildir: /var/mail/popsync
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty account list")
	}
}

func TestLoadMissingPassword(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - host: pop.example.com
    user: alice
delivery:
  maildir: /var/mail/popsync
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing password")
	}
}

func TestLoadNoDelivery(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - host: pop.example.com
    user: alice
    password: s
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing delivery backend")
	}
}

func TestLoadConflictingDelivery(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - host: pop.example.com
    user: alice
    password: s
delivery:
  maildir: /var/mail/popsync
  smtp:
    host: smtp.example.com
    username: u
    password: p
    to: t@example.com
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for both delivery backends")
	}
}

func TestLoadBadTLSVerify(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - host: pop.example.com
    user: alice
    password: s
    tls: true
    tls_verify: sometimes
delivery:
  maildir: /var/mail/popsync
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown tls_verify mode")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - host: pop.example.com
    user: old-user
    password: old-secret
delivery:
  maildir: /var/mail/popsync
state_path: /old/state.json
`)

	t.Setenv("POPSYNC_ACCOUNT_0_USER", "new-user")
	t.Setenv("POPSYNC_ACCOUNT_0_PASSWORD", "new-secret")
	t.Setenv("POPSYNC_STATE_PATH", "/new/state.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Accounts[0].User != "new-user" {
		t.Errorf("expected env override for account user, got %s", cfg.Accounts[0].User)
	}
	if cfg.Accounts[0].Password != "new-secret" {
		t.Errorf("expected env override for account password")
	}
	if cfg.StatePath != "/new/state.json" {
		t.Errorf("expected env override for state path, got %s", cfg.StatePath)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yml"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}
