package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akinomura/senpai/pkg/senpai/bot"
	"github.com/akinomura/senpai/pkg/senpai/persona"
)

// newPersonaCmd creates the `senpai persona` command group.
func newPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Inspect persona cards",
		Long: `Lists and validates the persona cards in the configured directory.

Examples:
  senpai persona list
  senpai persona show miko
  senpai persona check`,
	}

	cmd.AddCommand(
		newPersonaListCmd(),
		newPersonaShowCmd(),
		newPersonaCheckCmd(),
	)

	return cmd
}

func newPersonaListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available persona cards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, cfg, err := openCatalog(cmd)
			if err != nil {
				return err
			}

			names, err := catalog.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Printf("No persona cards found in %s\n", cfg.PersonasDir)
				return nil
			}

			for _, name := range names {
				marker := "  "
				if name == cfg.Persona {
					marker = "* "
				}
				fmt.Printf("%s%s\n", marker, name)
			}
			return nil
		},
	}
}

func newPersonaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a persona card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := openCatalog(cmd)
			if err != nil {
				return err
			}

			card, err := catalog.Load(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Name:          %s\n", card.Name)
			fmt.Printf("Description:   %s\n", card.Description)
			if card.FirstMessage != "" {
				fmt.Printf("First message: %s\n", card.FirstMessage)
			}
			fmt.Printf("Dialogue turns: %d\n", len(card.ExampleDialogue))
			fmt.Printf("Placeholders:  %v\n", persona.Placeholders(card.PromptTemplate))
			return nil
		},
	}
}

func newPersonaCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate all persona cards",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, _, err := openCatalog(cmd)
			if err != nil {
				return err
			}

			names, err := catalog.List()
			if err != nil {
				return err
			}

			bad := 0
			for _, name := range names {
				if _, err := catalog.Load(name); err != nil {
					fmt.Printf("FAIL %s: %v\n", name, err)
					bad++
					continue
				}
				fmt.Printf("ok   %s\n", name)
			}

			if bad > 0 {
				return fmt.Errorf("%d of %d persona cards invalid", bad, len(names))
			}
			fmt.Printf("%d persona cards valid\n", len(names))
			return nil
		},
	}
}

// openCatalog resolves config and opens the persona catalog.
func openCatalog(cmd *cobra.Command) (*persona.Catalog, *bot.Config, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := buildLogger(cmd, cfg)

	catalog, err := persona.NewCatalog(cfg.PersonasDir, logger)
	if err != nil {
		return nil, nil, err
	}
	return catalog, cfg, nil
}
