package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "VIGILO_AGENT_CONFIG"
	DefaultConfigPath = "/etc/vigilo/agent.yaml"
)

type Config struct {
	Agent       AgentConfig         `yaml:"agent"`
	Mail        *MailConfig         `yaml:"mail"`
	Webhook     *WebhookConfig      `yaml:"webhook"`
	Alerts      AlertConfig         `yaml:"alerts"`
	TrafficGate *TrafficGateConfig  `yaml:"traffic_gate"`
	CPU         *CPUMonitorConfig   `yaml:"cpu_monitor"`
	Storage     *StorageConfig      `yaml:"storage_monitor"`
	Services    *ServiceConfig      `yaml:"service_monitor"`
	Processes   *ProcessConfig      `yaml:"process_monitor"`
	Ping        *PingConfig         `yaml:"ping_check"`
	Uptime      *UptimeConfig       `yaml:"uptime_check"`
	CDR         *CDRMonitorConfig   `yaml:"cdr_monitor"`
	Trace       *TraceMonitorConfig `yaml:"trace_monitor"`
	LogErrors   *LogMonitorConfig   `yaml:"log_monitor"`
	Rate        *RateMonitorConfig  `yaml:"rate_monitor"`
}

type AgentConfig struct {
	ServerName  string `yaml:"server_name"`
	StateDir    string `yaml:"state_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type MailConfig struct {
	SMTPServer    string   `yaml:"smtp_server"`
	SMTPPort      int      `yaml:"smtp_port"`
	FromEmail     string   `yaml:"from_email"`
	ToEmails      []string `yaml:"to_emails"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

type WebhookConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AlertConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	BackoffSeconds int     `yaml:"backoff_seconds"`
	RatePerMinute  float64 `yaml:"rate_per_minute"`
}

// TrafficGateConfig points at the database table whose newest row timestamp
// tells whether live traffic is flowing through this site.
type TrafficGateConfig struct {
	DBHost              string `yaml:"db_host"`
	DBPort              int    `yaml:"db_port"`
	DBName              string `yaml:"db_name"`
	DBUser              string `yaml:"db_user"`
	DBPassword          string `yaml:"db_password"`
	Table               string `yaml:"table"`
	TimestampColumn     string `yaml:"timestamp_column"`
	InactivitySeconds   int    `yaml:"inactivity_threshold_seconds"`
	ConnectTimeoutSecs  int    `yaml:"connect_timeout_seconds"`
}

type CPUMonitorConfig struct {
	Threshold       float64 `yaml:"threshold"`
	DurationSeconds int     `yaml:"monitor_duration_seconds"`
	CooldownSeconds int     `yaml:"cooldown_seconds"`
	IntervalSeconds int     `yaml:"check_interval_seconds"`
}

type StorageConfig struct {
	IntervalSeconds int                       `yaml:"check_interval_seconds"`
	Directories     map[string]MountThreshold `yaml:"directories"`
}

type MountThreshold struct {
	Threshold       float64 `yaml:"threshold"`
	CooldownSeconds int     `yaml:"cooldown_seconds"`
}

type ServiceConfig struct {
	IntervalSeconds int            `yaml:"check_interval_seconds"`
	Services        []ServiceCheck `yaml:"services"`
}

type ServiceCheck struct {
	Name            string `yaml:"name"`
	CheckCommand    string `yaml:"check_command"`
	IntervalSeconds int    `yaml:"check_interval_seconds"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type ProcessConfig struct {
	IntervalSeconds int      `yaml:"check_interval_seconds"`
	CooldownSeconds int      `yaml:"cooldown_seconds"`
	Processes       []string `yaml:"processes"`
}

type PingConfig struct {
	TargetIP        string `yaml:"target_ip"`
	IntervalSeconds int    `yaml:"check_interval_seconds"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type UptimeConfig struct {
	ThresholdMinutes int `yaml:"threshold_minutes"`
	CooldownSeconds  int `yaml:"cooldown_seconds"`
	IntervalSeconds  int `yaml:"check_interval_seconds"`
}

// CDRMonitorConfig watches a directory where traffic records are written and
// alerts when the newest files stop growing.
type CDRMonitorConfig struct {
	WatchDir          string `yaml:"watch_dir"`
	Glob              string `yaml:"glob"`
	IntervalSeconds   int    `yaml:"check_interval_seconds"`
	CooldownSeconds   int    `yaml:"cooldown_seconds"`
	GrowthWaitSeconds int    `yaml:"growth_wait_seconds"`
	Gated             bool   `yaml:"gated"`
}

type TraceMonitorConfig struct {
	TraceDir        string `yaml:"trace_dir"`
	FilenamePrefix  string `yaml:"filename_prefix"`
	FileCount       int    `yaml:"trace_file_count"`
	MaxIdleSeconds  int    `yaml:"max_idle_seconds"`
	IntervalSeconds int    `yaml:"check_interval_seconds"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	Gated           bool   `yaml:"gated"`
}

type LogMonitorConfig struct {
	IntervalSeconds int                    `yaml:"check_interval_seconds"`
	CooldownSeconds int                    `yaml:"cooldown_seconds"`
	MatchPatterns   []string               `yaml:"match_patterns"`
	IgnorePatterns  []string               `yaml:"ignore_patterns"`
	Instances       map[string]LogInstance `yaml:"instances"`
}

type LogInstance struct {
	PathPrefix string `yaml:"path_prefix"`
}

type RateMonitorConfig struct {
	LogDir          string        `yaml:"log_dir"`
	FilenamePrefix  string        `yaml:"filename_prefix"`
	IntervalSeconds int           `yaml:"check_interval_seconds"`
	Patterns        []RatePattern `yaml:"patterns"`
	Gated           bool          `yaml:"gated"`
}

type RatePattern struct {
	Label           string `yaml:"label"`
	Regexp          string `yaml:"regexp"`
	WindowSeconds   int    `yaml:"window_seconds"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// PathFromEnv resolves the config path from the environment with a fallback.
func PathFromEnv() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Seconds converts a whole-second config value to a duration, substituting a
// fallback for missing or non-positive values.
func Seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}
