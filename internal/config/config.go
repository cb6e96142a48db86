// Package config handles configuration loading and defaults for the sync core.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete sync core configuration.
type Config struct {
	// DataDir is where the sqlite queue database lives.
	DataDir string `yaml:"data_dir"`

	// HealthURL is the lightweight, side-effect-free liveness endpoint.
	HealthURL string `yaml:"health_url"`

	// RealtimeURL is the websocket endpoint; the current credential is
	// appended as a path segment at connect time.
	RealtimeURL string `yaml:"realtime_url"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Queue    QueueConfig    `yaml:"queue"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// QueueConfig holds durable queue tuning.
type QueueConfig struct {
	// DedupWindowMs is the span within which structurally identical
	// requests are suppressed as duplicates.
	DedupWindowMs int `yaml:"dedup_window_ms"`

	// DrainPauseMs is the pause after each successful replay, so a
	// burst drain does not overwhelm the backend.
	DrainPauseMs int `yaml:"drain_pause_ms"`

	// SendTimeoutMs bounds each replayed request.
	SendTimeoutMs int `yaml:"send_timeout_ms"`
}

// MonitorConfig holds connection monitor tuning.
type MonitorConfig struct {
	// ProbeIntervalMs is how often the health probe runs.
	ProbeIntervalMs int `yaml:"probe_interval_ms"`

	// ProbeTimeoutMs bounds a single probe attempt so a hung liveness
	// check cannot stall the state machine.
	ProbeTimeoutMs int `yaml:"probe_timeout_ms"`

	// BannerAutoHideMs is how long the "back online" banner stays
	// visible; offline and reconnecting banners are persistent.
	BannerAutoHideMs int `yaml:"banner_auto_hide_ms"`
}

// RealtimeConfig holds realtime channel tuning.
type RealtimeConfig struct {
	// HeartbeatIntervalMs is the application-level ping interval.
	HeartbeatIntervalMs int `yaml:"heartbeat_interval_ms"`

	// BackoffBaseMs and BackoffCapMs bound the reconnect delay:
	// min(base * 2^attempt, cap).
	BackoffBaseMs int `yaml:"backoff_base_ms"`
	BackoffCapMs  int `yaml:"backoff_cap_ms"`

	// SettleDelayMs is the wait after a credential change before
	// forcing a reconnect.
	SettleDelayMs int `yaml:"settle_delay_ms"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		LogLevel: "info",
		Queue: QueueConfig{
			DedupWindowMs: 5000,
			DrainPauseMs:  200,
			SendTimeoutMs: 15000,
		},
		Monitor: MonitorConfig{
			ProbeIntervalMs:  30000,
			ProbeTimeoutMs:   5000,
			BannerAutoHideMs: 3000,
		},
		Realtime: RealtimeConfig{
			HeartbeatIntervalMs: 30000,
			BackoffBaseMs:       1000,
			BackoffCapMs:        30000,
			SettleDelayMs:       500,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks intervals that must be positive.
func (c *Config) Validate() error {
	if c.Queue.DedupWindowMs < 0 {
		return fmt.Errorf("queue.dedup_window_ms must not be negative")
	}
	if c.Monitor.ProbeIntervalMs <= 0 {
		return fmt.Errorf("monitor.probe_interval_ms must be positive")
	}
	if c.Monitor.ProbeTimeoutMs <= 0 {
		return fmt.Errorf("monitor.probe_timeout_ms must be positive")
	}
	if c.Realtime.BackoffBaseMs <= 0 || c.Realtime.BackoffCapMs < c.Realtime.BackoffBaseMs {
		return fmt.Errorf("realtime backoff bounds are invalid")
	}
	return nil
}

// Duration helpers so callers do not repeat the millisecond conversion.

func (c QueueConfig) DedupWindow() time.Duration    { return time.Duration(c.DedupWindowMs) * time.Millisecond }
func (c QueueConfig) DrainPause() time.Duration     { return time.Duration(c.DrainPauseMs) * time.Millisecond }
func (c QueueConfig) SendTimeout() time.Duration    { return time.Duration(c.SendTimeoutMs) * time.Millisecond }
func (c MonitorConfig) ProbeInterval() time.Duration { return time.Duration(c.ProbeIntervalMs) * time.Millisecond }
func (c MonitorConfig) ProbeTimeout() time.Duration  { return time.Duration(c.ProbeTimeoutMs) * time.Millisecond }
func (c MonitorConfig) BannerAutoHide() time.Duration {
	return time.Duration(c.BannerAutoHideMs) * time.Millisecond
}
func (c RealtimeConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}
func (c RealtimeConfig) BackoffBase() time.Duration { return time.Duration(c.BackoffBaseMs) * time.Millisecond }
func (c RealtimeConfig) BackoffCap() time.Duration  { return time.Duration(c.BackoffCapMs) * time.Millisecond }
func (c RealtimeConfig) SettleDelay() time.Duration { return time.Duration(c.SettleDelayMs) * time.Millisecond }
