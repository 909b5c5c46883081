// Package cmd holds the deskmate command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/deskmate/internal/app"
	"github.com/zjrosen/deskmate/internal/config"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/ui/companion"
)

func init() {
	// Query the terminal background before bubbletea owns stdin, otherwise
	// the OSC 11 reply races the input loop and shows up in the text field.
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	serveFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "deskmate",
	Short: "A desktop pet that lives in your terminal",
	Long: `deskmate runs a small companion whose behaviour comes from plugins:
it wanders, gets hungry, can be picked up and dragged around, and talks
back through an agent connected to the HTTP API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/deskmate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log (path from log.path or DESKMATE_LOG, default debug.log)")
	rootCmd.Flags().BoolVar(&serveFlag, "serve", false,
		"also serve the HTTP API on daemon.addr")
}

func initConfig() {
	viper.Reset()
	defaults := config.Defaults()
	viper.SetDefault("plugins.dir", defaults.Plugins.Dir)
	viper.SetDefault("worker.queue_capacity", defaults.Worker.QueueCapacity)
	viper.SetDefault("worker.grace_period", defaults.Worker.GracePeriod)
	viper.SetDefault("daemon.addr", defaults.Daemon.Addr)
	viper.SetDefault("ui.markdown_style", defaults.UI.MarkdownStyle)
	viper.SetDefault("ui.show_status", defaults.UI.ShowStatus)
	viper.SetDefault("ui.show_log", defaults.UI.ShowLog)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", config.DefaultTracesFilePath())
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("flags", defaults.Flags)

	viper.SetEnvPrefix("deskmate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if dir := config.DefaultDir(); dir != "" {
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// First run: write the commented default so there is something to edit.
			if dir := config.DefaultDir(); dir != "" {
				path := filepath.Join(dir, "config.yaml")
				if writeErr := config.WriteDefaultConfig(path); writeErr == nil {
					viper.SetConfigFile(path)
					_ = viper.ReadInConfig()
				}
			}
		} else {
			fmt.Fprintf(os.Stderr, "reading config: %v\n", err)
		}
	}

	cfg = config.Config{}
	_ = viper.Unmarshal(&cfg)
}

// configPath is the file flag edits are written to.
func configPath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return filepath.Join(config.DefaultDir(), "config.yaml")
}

// setupLogging opens the debug log when asked for. The returned func
// closes it.
func setupLogging(prefix string) (func(), error) {
	path := os.Getenv("DESKMATE_LOG")
	if path == "" {
		path = cfg.Log.Path
	}
	if !debugFlag && os.Getenv("DESKMATE_DEBUG") == "" && path == "" {
		return func() {}, nil
	}
	if path == "" {
		path = "debug.log"
	}
	cleanup, err := log.InitWithTeaLog(path, prefix)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	log.Info(log.CatConfig, "deskmate starting", "version", version, "log", path)
	return cleanup, nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	cleanup, err := setupLogging("deskmate")
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := a.Stop(stopCtx); err != nil {
			log.ErrorErr(log.CatWorker, "shutdown incomplete", err)
		}
	}()

	if serveFlag {
		srv, errCh := serve(a, cfg.Daemon.Addr)
		defer func() { _ = shutdownServer(srv) }()
		go func() {
			if err := <-errCh; err != nil {
				log.ErrorErr(log.CatHTTP, "api server stopped", err)
			}
		}()
	}

	zone.NewGlobal()
	defer zone.Close()

	model := companion.New(ctx, a.Backend(), companion.Options{
		Theme:      cfg.UI.MarkdownStyle,
		ShowStatus: cfg.UI.ShowStatus,
		ShowLog:    cfg.UI.ShowLog,
		Logs:       log.NewListener(ctx),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
