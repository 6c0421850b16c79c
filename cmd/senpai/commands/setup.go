package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/akinomura/senpai/pkg/senpai/bot"
)

// newSetupCmd creates the `senpai setup` interactive configuration wizard.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard to create your initial config.yaml.
Asks for the active persona, model, Discord token, and API key. Secrets go
to the OS keyring when one is available; config.yaml never holds them in
plaintext in that case.

Examples:
  senpai setup`,
		RunE: runSetup,
	}
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg := bot.DefaultConfig()

	var (
		apiKey       string
		discordToken string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Persona name").
				Description("Name of the persona card in personas_dir (<name>.json).").
				Value(&cfg.Persona),

			huh.NewInput().
				Title("Personas directory").
				Value(&cfg.PersonasDir),

			huh.NewSelect[string]().
				Title("Gemini model").
				Options(
					huh.NewOption("gemini-2.0-flash (fast, default)", "gemini-2.0-flash"),
					huh.NewOption("gemini-2.0-pro (more capable)", "gemini-2.0-pro"),
					huh.NewOption("gemini-1.5-flash", "gemini-1.5-flash"),
					huh.NewOption("gemini-1.5-pro", "gemini-1.5-pro"),
				).
				Value(&cfg.Model.Name),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Gemini API key").
				Description("Leave empty to use the GEMINI_API_KEY environment variable.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),

			huh.NewInput().
				Title("Discord bot token").
				Description("Leave empty to use the DISCORD_TOKEN environment variable.").
				EchoMode(huh.EchoModePassword).
				Value(&discordToken),
		),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Memory backend").
				Options(
					huh.NewOption("sqlite (persistent, recommended)", "sqlite"),
					huh.NewOption("static (canned entries from config)", "static"),
				).
				Value(&cfg.Memory.Backend),

			huh.NewConfirm().
				Title("Rotate Discord status periodically?").
				Value(&cfg.Presence.Enabled),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup aborted: %w", err)
	}

	storeSecret := func(name, value, envVar string) {
		if value == "" {
			return
		}
		if bot.KeyringAvailable() {
			if err := bot.StoreKeyring(name, value); err == nil {
				fmt.Printf("Stored %s in the OS keyring.\n", name)
				return
			}
		}
		// No keyring. The value goes into config.yaml, which is written
		// with 0600 permissions below.
		fmt.Printf("Keyring unavailable; %s saved to config.yaml. Consider using %s instead.\n", name, envVar)
		switch name {
		case bot.APIKeyKeyringName:
			cfg.Model.APIKey = value
		case bot.DiscordTokenKeyringName:
			cfg.Discord.Token = value
		}
	}

	storeSecret(bot.APIKeyKeyringName, apiKey, "GEMINI_API_KEY")
	storeSecret(bot.DiscordTokenKeyringName, discordToken, "DISCORD_TOKEN")

	path := "config.yaml"
	if err := bot.SaveConfigToFile(cfg, path); err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Configuration written to %s\n", path)
	fmt.Printf("Drop a persona card at %s/%s.json and run 'senpai serve'.\n", cfg.PersonasDir, cfg.Persona)
	return nil
}
