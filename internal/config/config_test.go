package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, Validate(cfg))
	require.Equal(t, 1024, cfg.Worker.QueueCapacity)
	require.Equal(t, 2*time.Second, cfg.Worker.GracePeriod)
	require.True(t, cfg.Flags["hot-reload"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "negative queue", mutate: func(c *Config) { c.Worker.QueueCapacity = -1 }, wantErr: "worker.queue_capacity"},
		{name: "negative grace", mutate: func(c *Config) { c.Worker.GracePeriod = -time.Second }, wantErr: "worker.grace_period"},
		{name: "markdown style", mutate: func(c *Config) { c.UI.MarkdownStyle = "neon" }, wantErr: "ui.markdown_style"},
		{name: "sample rate", mutate: func(c *Config) { c.Tracing.SampleRate = 1.5 }, wantErr: "sample_rate"},
		{name: "exporter", mutate: func(c *Config) { c.Tracing.Exporter = "kafka" }, wantErr: "tracing.exporter"},
		{name: "otlp endpoint", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, wantErr: "otlp_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteDefaultConfig_LoadsThroughViper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.Equal(t, 1024, cfg.Worker.QueueCapacity)
	require.Equal(t, 2*time.Second, cfg.Worker.GracePeriod)
	require.Equal(t, "127.0.0.1:7777", cfg.Daemon.Addr)
	require.Equal(t, "auto", cfg.UI.MarkdownStyle)
	require.True(t, cfg.UI.ShowStatus)
	require.True(t, cfg.Flags["event-stream"])
}

func TestDefaultDir_HonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	require.Equal(t, filepath.Join("/tmp/xdg", "deskmate"), DefaultDir())
	require.Equal(t, filepath.Join("/tmp/xdg", "deskmate", "plugins"), DefaultPluginsDir())
}
