// Package commands implements the talksum CLI commands using cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talksum/talksum/pkg/talksum/config"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "talksum",
		Short: "TalkSum - AI chat summary bot for Nextcloud Talk",
		Long: `TalkSum listens to Talk rooms, stores the conversation, and posts
AI-generated summaries on command or on a daily schedule.

Examples:
  talksum setup
  talksum serve
  talksum schedule list`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newScheduleCmd(),
		newSetupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// resolveConfig loads the configuration honoring the --config flag.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	return config.Load(path)
}

// newLogger builds the slog logger from config plus the --verbose flag.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch {
	case verbose, cfg.Logging.Level == "debug":
		level = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		level = slog.LevelWarn
	case cfg.Logging.Level == "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
