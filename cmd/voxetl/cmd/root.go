// Package cmd implements the CLI commands for voxetl.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxetl/voxetl/internal/config"
	"github.com/voxetl/voxetl/internal/observability"
	"github.com/voxetl/voxetl/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "voxetl",
	Short:   "Media transcription pipeline service",
	Version: version.Short(),
	Long: `voxetl downloads media from a URL, extracts and normalizes the audio,
splits it into bounded chunks, transcribes each chunk against a remote
speech-to-text API, and merges the results into a single transcript.

Artifacts are persisted in an S3-compatible object store; clients follow
task progress over a server-sent event stream.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Flags are not bound to viper; loadConfig applies them afterwards so
	// the priority stays CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/voxetl, $HOME/.voxetl)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig loads configuration and applies explicitly set global flags
// on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging builds the process logger from configuration and installs
// it as the slog default.
func initLogging(cfg *config.Config) {
	logger := observability.NewLoggerWithWriter(observability.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	}, os.Stderr)
	observability.SetDefault(logger)
}
