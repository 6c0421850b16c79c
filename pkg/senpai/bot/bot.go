package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/akinomura/senpai/pkg/senpai/channels"
	"github.com/akinomura/senpai/pkg/senpai/channels/discord"
	"github.com/akinomura/senpai/pkg/senpai/identity"
	"github.com/akinomura/senpai/pkg/senpai/memory"
	"github.com/akinomura/senpai/pkg/senpai/persona"
	"github.com/akinomura/senpai/pkg/senpai/pipeline"
)

// apologyMessage is the single user-safe string shown for any pipeline
// failure. Diagnostic detail goes to the log, never to the user.
const apologyMessage = "呜……我的大脑好像短路了，暂时不能回复你。稍后再试试吧！"

// defaultGreetingInput stands in for a bare mention with no other content.
const defaultGreetingInput = "你好"

// Bot wires all subsystems and runs the message loop.
type Bot struct {
	cfg    *Config
	logger *slog.Logger

	channelMgr *channels.Manager
	discord    *discord.Discord
	identities *identity.Store
	personas   *persona.Catalog
	retriever  memory.Retriever
	pipeline   *pipeline.Pipeline

	// cron drives the presence rotation job.
	cron      *cron.Cron
	statusIdx atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Bot and opens its stores. The completion client and the
// pipeline are built in Start, which owns the process context.
func New(cfg *Config, logger *slog.Logger) (*Bot, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	identities, err := identity.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening identity store: %w", err)
	}

	personas, err := persona.NewCatalog(cfg.PersonasDir, logger)
	if err != nil {
		identities.Close()
		return nil, fmt.Errorf("opening persona catalog: %w", err)
	}

	retriever, err := buildRetriever(cfg, identities, logger)
	if err != nil {
		identities.Close()
		return nil, err
	}

	dc := discord.New(cfg.Discord, logger)
	channelMgr := channels.NewManager(logger.With("component", "channels"))
	if err := channelMgr.Register(dc); err != nil {
		identities.Close()
		return nil, err
	}

	return &Bot{
		cfg:        cfg,
		logger:     logger,
		channelMgr: channelMgr,
		discord:    dc,
		identities: identities,
		personas:   personas,
		retriever:  retriever,
		cron:       cron.New(),
	}, nil
}

// buildRetriever selects the configured memory backend.
func buildRetriever(cfg *Config, identities *identity.Store, logger *slog.Logger) (memory.Retriever, error) {
	switch cfg.Memory.Backend {
	case "", "sqlite":
		store, err := memory.NewSQLiteStore(identities.DB(), cfg.Memory.MaxResults, logger)
		if err != nil {
			return nil, fmt.Errorf("opening memory store: %w", err)
		}
		return store, nil
	case "static":
		return memory.NewStatic(cfg.Memory.StaticEntries, cfg.Memory.MaxResults), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

// Start connects channels, builds the pipeline, and begins processing.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.logger.Info("starting Senpai",
		"persona", b.cfg.Persona,
		"model", b.cfg.Model.Name,
		"memory_backend", b.cfg.Memory.Backend,
	)

	// Load the active persona eagerly so card problems surface at startup,
	// not on the first message.
	if _, err := b.personas.Load(b.cfg.Persona); err != nil {
		return fmt.Errorf("loading active persona: %w", err)
	}

	completer, err := pipeline.NewGeminiClient(
		b.ctx,
		b.cfg.Model.APIKey,
		b.cfg.Model.Name,
		time.Duration(b.cfg.Model.TimeoutSeconds)*time.Second,
		b.logger,
	)
	if err != nil {
		return fmt.Errorf("creating completion client: %w", err)
	}

	assembler := pipeline.NewAssembler(b.identities, b.discord, b.retriever, b.cfg.History.Limit, b.logger)
	b.pipeline = pipeline.New(b.personas, b.cfg.Persona, assembler, completer, b.logger)

	if err := b.channelMgr.Start(b.ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}

	b.startPresenceRotation()

	go b.messageLoop()

	b.logger.Info("Senpai started")
	return nil
}

// Stop gracefully shuts everything down in reverse order.
func (b *Bot) Stop() {
	b.logger.Info("stopping Senpai...")

	if b.cancel != nil {
		b.cancel()
	}
	b.cron.Stop()
	b.channelMgr.Stop()
	if err := b.identities.Close(); err != nil {
		b.logger.Error("closing identity store", "error", err)
	}

	b.logger.Info("Senpai stopped")
}

// messageLoop processes messages from all channels, one goroutine per
// message; the pipeline stages themselves are purely sequential.
func (b *Bot) messageLoop() {
	for {
		select {
		case msg, ok := <-b.channelMgr.Messages():
			if !ok {
				return
			}
			go b.handleMessage(msg)

		case <-b.ctx.Done():
			return
		}
	}
}

// handleMessage gates one inbound message and runs the pipeline for it.
func (b *Bot) handleMessage(msg *channels.Message) {
	// Never answer ourselves or other bots.
	if msg.FromSelf || msg.FromBot {
		return
	}

	// Guild messages require a mention; DMs always get a reply.
	if !msg.IsDM && !msg.Mentioned {
		return
	}

	// A bare mention with no content becomes a default greeting.
	if strings.TrimSpace(msg.Content) == "" && len(msg.Embeds) == 0 {
		if !msg.Mentioned {
			return
		}
		msg.Content = defaultGreetingInput
	}

	start := time.Now()
	logger := b.logger.With(
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID,
		"msg_id", msg.ID,
	)
	logger.Info("message received, processing...")

	if err := b.discord.SendTyping(b.ctx, msg.ChatID); err != nil {
		logger.Debug("typing indicator failed", "error", err)
	}

	reply, err := b.pipeline.GenerateResponse(b.ctx, msg)
	if err != nil {
		logger.Error("response generation failed", "error", err)
		b.sendReply(msg, apologyMessage)
		return
	}

	b.sendReply(msg, reply)

	logger.Info("message processed",
		"duration_ms", time.Since(start).Milliseconds(),
		"reply_chars", len(reply),
	)
}

// sendReply routes a reply back to the conversation. The channel handles
// chunking and pacing for long content.
func (b *Bot) sendReply(original *channels.Message, content string) {
	out := &channels.OutgoingMessage{
		Content: content,
		ReplyTo: original.ID,
	}
	if err := b.channelMgr.Send(b.ctx, original.Channel, original.ChatID, out); err != nil {
		b.logger.Error("failed to send reply",
			"channel", original.Channel,
			"chat_id", original.ChatID,
			"error", err,
		)
	}
}

// startPresenceRotation schedules the rotating status job, if configured.
func (b *Bot) startPresenceRotation() {
	if !b.cfg.Presence.Enabled || len(b.cfg.Presence.Statuses) == 0 {
		return
	}

	_, err := b.cron.AddFunc(b.cfg.Presence.Schedule, func() {
		idx := b.statusIdx.Add(1)
		status := b.cfg.Presence.Statuses[int(idx)%len(b.cfg.Presence.Statuses)]
		if err := b.discord.SetStatus(b.ctx, status); err != nil {
			b.logger.Debug("status update failed", "error", err)
		}
	})
	if err != nil {
		b.logger.Error("invalid presence schedule, rotation disabled",
			"schedule", b.cfg.Presence.Schedule, "error", err)
		return
	}

	b.cron.Start()
	b.logger.Info("presence rotation enabled",
		"schedule", b.cfg.Presence.Schedule,
		"statuses", len(b.cfg.Presence.Statuses),
	)
}
