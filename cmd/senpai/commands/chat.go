package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/akinomura/senpai/pkg/senpai/channels"
	"github.com/akinomura/senpai/pkg/senpai/identity"
	"github.com/akinomura/senpai/pkg/senpai/memory"
	"github.com/akinomura/senpai/pkg/senpai/persona"
	"github.com/akinomura/senpai/pkg/senpai/pipeline"
)

// localChatID is the conversation id used by the terminal REPL.
const localChatID = "local"

// newChatCmd creates the `senpai chat` command for a terminal conversation.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the persona from the terminal",
		Long: `Runs the full response pipeline against a local conversation, without
Discord. With an argument it answers once and exits; without arguments it
starts an interactive session.

Examples:
  senpai chat "今天过得怎么样？"
  senpai chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().Int64("user-id", 1, "local user id for identity and memory")
	cmd.Flags().String("user-name", "local", "local user name")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)

	if cfg.Model.APIKey == "" {
		return fmt.Errorf("no API key configured; run 'senpai setup' or set GEMINI_API_KEY")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	identities, err := identity.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening identity store: %w", err)
	}
	defer identities.Close()

	personas, err := persona.NewCatalog(cfg.PersonasDir, logger)
	if err != nil {
		return fmt.Errorf("opening persona catalog: %w", err)
	}
	card, err := personas.Load(cfg.Persona)
	if err != nil {
		return fmt.Errorf("loading persona %q: %w", cfg.Persona, err)
	}

	var retriever memory.Retriever
	switch cfg.Memory.Backend {
	case "", "sqlite":
		retriever, err = memory.NewSQLiteStore(identities.DB(), cfg.Memory.MaxResults, logger)
		if err != nil {
			return fmt.Errorf("opening memory store: %w", err)
		}
	case "static":
		retriever = memory.NewStatic(cfg.Memory.StaticEntries, cfg.Memory.MaxResults)
	default:
		return fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}

	completer, err := pipeline.NewGeminiClient(
		ctx,
		cfg.Model.APIKey,
		cfg.Model.Name,
		time.Duration(cfg.Model.TimeoutSeconds)*time.Second,
		logger,
	)
	if err != nil {
		return err
	}

	history := &localHistory{}
	assembler := pipeline.NewAssembler(identities, history, retriever, cfg.History.Limit, logger)
	pipe := pipeline.New(personas, cfg.Persona, assembler, completer, logger)

	userID, _ := cmd.Flags().GetInt64("user-id")
	userName, _ := cmd.Flags().GetString("user-name")

	session := &chatSession{
		pipe:        pipe,
		history:     history,
		userID:      userID,
		userName:    userName,
		personaName: card.Name,
	}

	if len(args) > 0 {
		reply, err := session.exchange(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	}

	return session.repl(ctx)
}

// chatSession drives one REPL conversation against the pipeline.
type chatSession struct {
	pipe        *pipeline.Pipeline
	history     *localHistory
	userID      int64
	userName    string
	personaName string
	nextID      int
}

// repl runs the interactive loop until EOF or Ctrl+C.
func (s *chatSession) repl(ctx context.Context) error {
	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Chatting with %s. Ctrl+D to exit.\n", s.personaName)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		reply, err := s.exchange(ctx, line)
		if err != nil {
			fmt.Printf("[error] %v\n", err)
			continue
		}
		fmt.Printf("%s> %s\n", s.personaName, reply)
	}
}

// exchange runs one input through the pipeline and records both sides in
// the local history.
func (s *chatSession) exchange(ctx context.Context, input string) (string, error) {
	msg := &channels.Message{
		ID:                s.newID(),
		Channel:           "terminal",
		SenderID:          s.userID,
		SenderName:        s.userName,
		SenderDisplayName: s.userName,
		ChatID:            localChatID,
		IsDM:              true,
		Content:           input,
		Timestamp:         time.Now(),
	}
	s.history.append(msg)

	reply, err := s.pipe.GenerateResponse(ctx, msg)
	if err != nil {
		return "", err
	}

	s.history.append(&channels.Message{
		ID:                s.newID(),
		Channel:           "terminal",
		SenderName:        s.personaName,
		SenderDisplayName: s.personaName,
		ChatID:            localChatID,
		IsDM:              true,
		FromSelf:          true,
		FromBot:           true,
		Content:           reply,
		Timestamp:         time.Now(),
	})

	return reply, nil
}

func (s *chatSession) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

// localHistory is an in-memory HistorySource for the REPL, oldest-first
// internally, served newest-first like a real channel.
type localHistory struct {
	msgs []*channels.Message
}

var _ channels.HistorySource = (*localHistory)(nil)

func (h *localHistory) append(msg *channels.Message) {
	h.msgs = append(h.msgs, msg)
}

// History returns up to limit messages sent before beforeID, newest-first.
func (h *localHistory) History(_ context.Context, chatID, beforeID string, limit int) ([]*channels.Message, error) {
	end := len(h.msgs)
	if beforeID != "" {
		for i, m := range h.msgs {
			if m.ID == beforeID {
				end = i
				break
			}
		}
	}

	var out []*channels.Message
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		if h.msgs[i].ChatID == chatID {
			out = append(out, h.msgs[i])
		}
	}
	return out, nil
}
