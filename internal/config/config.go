// Package config provides the deskmate application configuration and the
// per-plugin YAML store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/deskmate/internal/log"
)

// Config holds all configuration options for deskmate.
type Config struct {
	Plugins PluginsConfig   `mapstructure:"plugins"`
	Worker  WorkerConfig    `mapstructure:"worker"`
	Daemon  DaemonConfig    `mapstructure:"daemon"`
	UI      UIConfig        `mapstructure:"ui"`
	Log     LogConfig       `mapstructure:"log"`
	Tracing TracingConfig   `mapstructure:"tracing"`
	Flags   map[string]bool `mapstructure:"flags"`
}

// PluginsConfig locates the per-plugin config tree.
type PluginsConfig struct {
	// Dir holds one <id>/config.yaml per plugin.
	// Default: ~/.config/deskmate/plugins
	Dir string `mapstructure:"dir"`
}

// WorkerConfig tunes the orchestration loop.
type WorkerConfig struct {
	QueueCapacity int           `mapstructure:"queue_capacity"`
	GracePeriod   time.Duration `mapstructure:"grace_period"` // how long Stop waits for tasks to unwind
}

// DaemonConfig configures the headless HTTP API.
type DaemonConfig struct {
	Addr string `mapstructure:"addr"`
}

// UIConfig holds companion view options.
type UIConfig struct {
	MarkdownStyle string `mapstructure:"markdown_style"` // auto, dark, light or notty
	ShowStatus    bool   `mapstructure:"show_status"`
	ShowLog       bool   `mapstructure:"show_log"`
}

// LogConfig controls the debug log file.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	Path  string `mapstructure:"path"`
}

// TracingConfig holds tracing configuration for task runs and plugin loads.
type TracingConfig struct {
	// Enabled controls whether tracing is active. Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend: "none", "file", "stdout", "otlp".
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultDir returns ~/.config/deskmate, or "" if the home dir is unknown.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "deskmate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "deskmate")
}

// DefaultPluginsDir returns the default plugin config tree.
func DefaultPluginsDir() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "plugins")
}

// DefaultTracesFilePath returns the default JSONL trace file.
func DefaultTracesFilePath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Plugins: PluginsConfig{Dir: DefaultPluginsDir()},
		Worker: WorkerConfig{
			QueueCapacity: 1024,
			GracePeriod:   2 * time.Second,
		},
		Daemon: DaemonConfig{Addr: "127.0.0.1:7777"},
		UI: UIConfig{
			MarkdownStyle: "auto",
			ShowStatus:    true,
		},
		Log: LogConfig{Level: "debug"},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{
			"hot-reload":   true,
			"event-stream": true,
		},
	}
}

// Validate checks the configuration for errors. Empty values fall back to
// defaults at use sites and are accepted.
func Validate(cfg Config) error {
	var errs []error
	if cfg.Worker.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("worker.queue_capacity must be >= 0, got %d", cfg.Worker.QueueCapacity))
	}
	if cfg.Worker.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("worker.grace_period must be >= 0, got %s", cfg.Worker.GracePeriod))
	}
	switch cfg.UI.MarkdownStyle {
	case "", "auto", "dark", "light", "notty":
	default:
		errs = append(errs, fmt.Errorf("ui.markdown_style must be auto, dark, light or notty, got %q", cfg.UI.MarkdownStyle))
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	switch tracing.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
	}

	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# deskmate configuration

plugins:
  # One <plugin>/config.yaml per plugin lives under this directory.
  # dir: ~/.config/deskmate/plugins

worker:
  queue_capacity: 1024
  grace_period: 2s       # how long shutdown waits for running tasks

daemon:
  addr: 127.0.0.1:7777   # used by 'deskmate daemon'

ui:
  markdown_style: auto   # auto, dark, light or notty
  show_status: true
  show_log: false

log:
  level: debug
  # path: /tmp/deskmate.log

# tracing:
#   enabled: false
#   exporter: file       # none, file, stdout, otlp
#   file_path: ~/.config/deskmate/traces/traces.jsonl
#   otlp_endpoint: localhost:4317
#   sample_rate: 1.0

flags:
  hot-reload: true       # re-apply plugin config.yaml edits while running
  event-stream: true     # expose /events on the daemon
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	if err := writeFileAtomic(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return err
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
