package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinomura/senpai/pkg/senpai/bot"
)

// newServeCmd creates the `senpai serve` command that runs the bot daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot connected to Discord",
		Long: `Start Senpai as a daemon: connects to Discord and answers direct
messages and mentions using the configured persona.

Examples:
  senpai serve
  senpai serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	if cfg.Discord.Token == "" {
		return fmt.Errorf("no Discord token configured; run 'senpai setup' or set DISCORD_TOKEN")
	}
	if cfg.Model.APIKey == "" {
		return fmt.Errorf("no API key configured; run 'senpai setup' or set GEMINI_API_KEY")
	}

	b, err := bot.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	logger.Info("Senpai running. Press Ctrl+C to stop.",
		"persona", cfg.Persona,
		"model", cfg.Model.Name,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		b.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out, exiting anyway")
	}

	return nil
}
