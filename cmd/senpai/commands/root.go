// Package commands implements the Senpai CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/akinomura/senpai/pkg/senpai/bot"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "senpai",
		Short: "Senpai - conversational companion bot",
		Long: `Senpai is a persona-driven conversational companion for Discord.
It assembles conversation context (identity, recent history, long-term
memories), renders it through a persona card, and replies via a Gemini
model.

Examples:
  senpai setup
  senpai serve
  senpai chat
  senpai persona list
  senpai remember --user 123456 "likes matcha lattes"`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSetupCmd(),
		newChatCmd(),
		newPersonaCmd(),
		newRememberCmd(),
		newMemoriesCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// resolveConfig loads the configuration from the --config flag or from the
// standard search locations, falling back to defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*bot.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		cfg, err := bot.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if found := bot.FindConfigFile(); found != "" {
		cfg, err := bot.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	// No file. Defaults plus keyring/env secrets still allow serve/chat to
	// run in simple setups.
	cfg := bot.DefaultConfig()
	bot.ResolveSecrets(cfg)
	return cfg, nil
}

// buildLogger builds the process logger, honoring --verbose.
func buildLogger(cmd *cobra.Command, cfg *bot.Config) *slog.Logger {
	logging := cfg.Logging
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		logging.Level = "debug"
	}
	return bot.NewLogger(logging)
}
