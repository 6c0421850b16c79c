package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akinomura/senpai/pkg/senpai/identity"
	"github.com/akinomura/senpai/pkg/senpai/memory"
)

// newRememberCmd creates the `senpai remember` command for adding a fact to
// a user's long-term memory.
func newRememberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remember <fact>",
		Short: "Add a fact to a user's long-term memory",
		Long: `Adds a fact the persona should recall in future conversations with
the given user.

Examples:
  senpai remember --user 123456789 "likes matcha lattes"
  senpai remember --user 1 "喜欢在深夜聊天"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openMemoryStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			userID, _ := cmd.Flags().GetInt64("user")
			fact := strings.Join(args, " ")

			if err := store.Remember(cmd.Context(), userID, fact); err != nil {
				return err
			}
			fmt.Printf("Remembered for user %d: %q\n", userID, fact)
			return nil
		},
	}

	cmd.Flags().Int64("user", 1, "user id the fact belongs to")
	return cmd
}

// newMemoriesCmd creates the `senpai memories` command for listing a user's
// stored facts.
func newMemoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "List a user's long-term memories",
		Long: `Lists the facts stored for a user, newest first.

Examples:
  senpai memories --user 123456789`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := openMemoryStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			userID, _ := cmd.Flags().GetInt64("user")

			entries, err := store.List(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Printf("No memories stored for user %d.\n", userID)
				return nil
			}
			for _, entry := range entries {
				fmt.Printf("- %s\n", entry)
			}
			return nil
		},
	}

	cmd.Flags().Int64("user", 1, "user id to list memories for")
	return cmd
}

// openMemoryStore opens the sqlite memory store on the configured database.
func openMemoryStore(cmd *cobra.Command) (*memory.SQLiteStore, func(), error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := buildLogger(cmd, cfg)

	identities, err := identity.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := memory.NewSQLiteStore(identities.DB(), cfg.Memory.MaxResults, logger)
	if err != nil {
		identities.Close()
		return nil, nil, fmt.Errorf("opening memory store: %w", err)
	}

	return store, func() { identities.Close() }, nil
}
