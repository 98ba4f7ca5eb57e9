package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tianzhicdev/dogetionary-sub008/pkg/config"
	"github.com/tianzhicdev/dogetionary-sub008/pkg/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clipcurator",
	Short: "Vocabulary video clip curator",
	Long: `Clip Curator - builds a library of short movie clips that teach vocabulary

For every word in a vocabulary file the pipeline searches a clip catalog,
scores each clip's transcript for how well it teaches the word, verifies the
best clips against their spoken audio, and uploads the survivors with their
word mappings to the video backend.

Features:
  • Resumable runs with per-stage caching and checkpoints
  • Rate-limited catalog and scoring clients with backoff
  • Audio verification with word-level timestamps
  • Video backend with batch upload and retrieval API`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")
}

// setupLogging installs the default logger from the persistent flags.
func setupLogging(cmd *cobra.Command, _ []string) error {
	_, err := newLogger(cmd, nil)
	return err
}

// newLogger builds the process logger. Flags that were set explicitly win
// over the logging section of cfg.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	flags := cmd.Flags()
	level, _ := flags.GetString("log-level")
	jsonLogs, _ := flags.GetBool("json-logs")

	format := "auto"
	if cfg != nil {
		if !flags.Changed("log-level") && cfg.Logging.Level != "" {
			level = cfg.Logging.Level
		}
		if cfg.Logging.Format != "" {
			format = cfg.Logging.Format
		}
	}
	if jsonLogs {
		format = "json"
	}

	return logging.Setup(logging.Options{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	})
}

// loadConfig loads and validates configuration for commands that need it,
// then rebuilds the logger with the configured settings.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	if err := config.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing config: %w", err)
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
