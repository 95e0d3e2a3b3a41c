package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
agent:
  server_name: sms-gw-01
  state_dir: /var/lib/vigilo
  metrics_addr: 127.0.0.1:9420
mail:
  smtp_server: relay.internal
  smtp_port: 25
  from_email: agent@example.net
  to_emails:
    - ops@example.net
alerts:
  max_attempts: 5
  backoff_seconds: 3
  rate_per_minute: 30
traffic_gate:
  db_host: 127.0.0.1
  db_port: 5432
  db_name: billing
  db_user: monitor
  db_password: secret
  table: cdr
  timestamp_column: created_at
  inactivity_threshold_seconds: 600
cpu_monitor:
  threshold: 90
  monitor_duration_seconds: 60
  cooldown_seconds: 1800
  check_interval_seconds: 30
storage_monitor:
  check_interval_seconds: 300
  directories:
    /var:
      threshold: 90
      cooldown_seconds: 3600
    /opt:
      threshold: 85
service_monitor:
  services:
    - name: postgresql
      check_command: systemctl is-active postgresql
      check_interval_seconds: 60
rate_monitor:
  log_dir: /logs
  filename_prefix: billing
  patterns:
    - label: submit
      regexp: submit_sm
      window_seconds: 60
      cooldown_seconds: 900
  gated: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Agent.ServerName != "sms-gw-01" || cfg.Agent.StateDir != "/var/lib/vigilo" {
		t.Fatalf("unexpected agent section %+v", cfg.Agent)
	}
	if cfg.Mail == nil || cfg.Mail.SMTPServer != "relay.internal" || len(cfg.Mail.ToEmails) != 1 {
		t.Fatalf("unexpected mail section %+v", cfg.Mail)
	}
	if cfg.Alerts.MaxAttempts != 5 || cfg.Alerts.RatePerMinute != 30 {
		t.Fatalf("unexpected alerts section %+v", cfg.Alerts)
	}
	if cfg.TrafficGate == nil || cfg.TrafficGate.Table != "cdr" || cfg.TrafficGate.InactivitySeconds != 600 {
		t.Fatalf("unexpected traffic gate section %+v", cfg.TrafficGate)
	}
	if cfg.CPU == nil || cfg.CPU.Threshold != 90 || cfg.CPU.DurationSeconds != 60 {
		t.Fatalf("unexpected cpu section %+v", cfg.CPU)
	}
	if cfg.Storage == nil || cfg.Storage.Directories["/opt"].Threshold != 85 {
		t.Fatalf("unexpected storage section %+v", cfg.Storage)
	}
	if cfg.Services == nil || len(cfg.Services.Services) != 1 || cfg.Services.Services[0].Name != "postgresql" {
		t.Fatalf("unexpected services section %+v", cfg.Services)
	}
	if cfg.Rate == nil || !cfg.Rate.Gated || cfg.Rate.Patterns[0].Label != "submit" {
		t.Fatalf("unexpected rate section %+v", cfg.Rate)
	}
	// Sections absent from the file stay nil so their monitors never start.
	if cfg.Ping != nil || cfg.Uptime != nil || cfg.Trace != nil {
		t.Fatal("expected absent sections to stay nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "agent: [")); err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(90, time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	if got := Seconds(0, time.Minute); got != time.Minute {
		t.Fatalf("expected the fallback, got %v", got)
	}
	if got := Seconds(-5, time.Minute); got != time.Minute {
		t.Fatalf("expected the fallback for negatives, got %v", got)
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(envConfigPath, "/tmp/custom.yaml")
	if got := PathFromEnv(); got != "/tmp/custom.yaml" {
		t.Fatalf("expected the env override, got %q", got)
	}
	t.Setenv(envConfigPath, "")
	if got := PathFromEnv(); got != DefaultConfigPath {
		t.Fatalf("expected the default path, got %q", got)
	}
}

func TestProviderReloadsOnMTimeChange(t *testing.T) {
	path := writeConfig(t, "agent:\n  server_name: before\n")

	p, err := NewProvider(path)
	if err != nil {
		t.Fatalf("failed to build provider: %v", err)
	}
	if got := p.Get().Agent.ServerName; got != "before" {
		t.Fatalf("expected initial config, got %q", got)
	}

	if err := os.WriteFile(path, []byte("agent:\n  server_name: after\n"), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	// Force a distinct mtime; coarse filesystem timestamps would otherwise
	// hide the rewrite.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	if got := p.Get().Agent.ServerName; got != "after" {
		t.Fatalf("expected reloaded config, got %q", got)
	}
}

func TestProviderKeepsLastGoodOnBadReload(t *testing.T) {
	path := writeConfig(t, "agent:\n  server_name: good\n")

	p, err := NewProvider(path)
	if err != nil {
		t.Fatalf("failed to build provider: %v", err)
	}

	if err := os.WriteFile(path, []byte("agent: ["), 0o600); err != nil {
		t.Fatalf("failed to corrupt config: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	if got := p.Get().Agent.ServerName; got != "good" {
		t.Fatalf("expected the last good config, got %q", got)
	}
}

func TestStaticProviderServesFixedConfig(t *testing.T) {
	p := Static(Config{Agent: AgentConfig{ServerName: "fixed"}})
	if got := p.Get().Agent.ServerName; got != "fixed" {
		t.Fatalf("expected the fixed config, got %q", got)
	}
}
