package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/akinomura/senpai/pkg/senpai/channels"
	"github.com/akinomura/senpai/pkg/senpai/persona"
)

// PersonaSource is the slice of the persona catalog the pipeline needs.
type PersonaSource interface {
	Load(name string) (*persona.Persona, error)
}

// Pipeline composes identity resolution, context assembly, prompt
// rendering, and completion into one generate-response operation.
type Pipeline struct {
	personas    PersonaSource
	personaName string
	assembler   *Assembler
	completer   Completer
	logger      *slog.Logger
}

// New wires a response pipeline around an assembler and a completer,
// answering as the named persona.
func New(personas PersonaSource, personaName string, assembler *Assembler, completer Completer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		personas:    personas,
		personaName: personaName,
		assembler:   assembler,
		completer:   completer,
		logger:      logger.With("component", "pipeline"),
	}
}

// GenerateResponse runs the full pipeline for one inbound message and
// returns the reply text. All stage failures propagate as typed errors;
// the caller decides how to present them. No partial responses, no
// retries.
func (p *Pipeline) GenerateResponse(ctx context.Context, msg *channels.Message) (string, error) {
	start := time.Now()
	logger := p.logger.With(
		"request_id", uuid.NewString(),
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID,
	)

	pers, err := p.personas.Load(p.personaName)
	if err != nil {
		return "", fmt.Errorf("loading persona %q: %w", p.personaName, err)
	}

	bundle, err := p.assembler.Assemble(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("assembling context: %w", err)
	}

	prompt, err := Render(pers, bundle)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	// Greet first-time users with the persona's opening line before the
	// generated reply.
	if bundle.FirstContact && pers.FirstMessage != "" {
		reply = pers.FirstMessage + "\n" + reply
	}

	logger.Info("response generated",
		"duration_ms", time.Since(start).Milliseconds(),
		"first_contact", bundle.FirstContact,
		"memories", len(bundle.LongTermMemories),
		"reply_chars", len(reply),
	)

	return reply, nil
}
