package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/akinomura/senpai/pkg/senpai/bot"
)

// newConfigCmd creates the `senpai config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manages the Senpai configuration file.

Examples:
  senpai config init
  senpai config show`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := "config.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}
			if err := bot.SaveConfigToFile(bot.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			// Secrets never hit stdout.
			redacted := *cfg
			if redacted.Model.APIKey != "" {
				redacted.Model.APIKey = "<redacted>"
			}
			if redacted.Discord.Token != "" {
				redacted.Discord.Token = "<redacted>"
			}

			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}
