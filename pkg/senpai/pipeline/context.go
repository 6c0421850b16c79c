package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/akinomura/senpai/pkg/senpai/channels"
	"github.com/akinomura/senpai/pkg/senpai/identity"
	"github.com/akinomura/senpai/pkg/senpai/memory"
)

// Literal markers of the message-to-text renderer. The embed sentinels are
// a stable contract: downstream prompts rely on them to let the model tell
// card content apart from prose.
const (
	embedOpen      = "[嵌入内容开始]"
	embedClose     = "[嵌入内容结束]"
	imageNotice    = "[提示：消息包含一张主图片]"
	thumbNotice    = "[提示：消息包含一张缩略图]"
	emptyMessage   = "[空消息或仅包含附件]"
	queryFallback  = "(无文本内容)"
	noMemoryMarker = "无相关记忆"
)

// defaultHistoryLimit is how many prior messages feed the transcript.
const defaultHistoryLimit = 10

// Bundle is the per-request context handed to the prompt renderer. Built
// fresh per request, owned by that request, never shared.
type Bundle struct {
	// UserInfo is a short human-readable identity summary.
	UserInfo string

	// ShortTermTranscript is the recent conversation, oldest first, one
	// rendered message per line block.
	ShortTermTranscript string

	// LongTermMemories are the retrieved memory snippets, most relevant
	// first. Empty when nothing matched or retrieval failed.
	LongTermMemories []string

	// CurrentInput is the rendered form of the inbound message.
	CurrentInput string

	// FirstContact is true when the sender was unknown before this
	// request.
	FirstContact bool
}

// IdentityResolver is the slice of the identity store the assembler needs.
type IdentityResolver interface {
	GetOrCreate(ctx context.Context, id int64, name, displayName string) (*identity.Profile, bool, error)
}

// Assembler gathers identity, short-term history, and long-term memories
// into a Bundle.
type Assembler struct {
	identities   IdentityResolver
	history      channels.HistorySource
	memories     memory.Retriever
	historyLimit int
	logger       *slog.Logger
}

// NewAssembler wires an assembler. historyLimit <= 0 selects the default.
func NewAssembler(identities IdentityResolver, history channels.HistorySource, memories memory.Retriever, historyLimit int, logger *slog.Logger) *Assembler {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		identities:   identities,
		history:      history,
		memories:     memories,
		historyLimit: historyLimit,
		logger:       logger.With("component", "assembler"),
	}
}

// Assemble builds the full context bundle for one inbound message. Identity
// and history failures abort assembly; memory retrieval failures degrade to
// an empty memory list.
func (a *Assembler) Assemble(ctx context.Context, msg *channels.Message) (*Bundle, error) {
	profile, created, err := a.identities.GetOrCreate(ctx, msg.SenderID, msg.SenderName, msg.SenderDisplayName)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}

	history, err := a.history.History(ctx, msg.ChatID, msg.ID, a.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}

	// History arrives newest-first; reverse for natural reading order.
	lines := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		lines = append(lines, RenderMessage(history[i]))
	}

	bundle := &Bundle{
		UserInfo:            fmt.Sprintf("当前用户：%s（ID：%d）", profile.DisplayName, profile.ID),
		ShortTermTranscript: strings.Join(lines, "\n"),
		CurrentInput:        RenderMessage(msg),
		FirstContact:        created,
	}

	bundle.LongTermMemories = a.retrieveMemories(ctx, msg)

	return bundle, nil
}

// retrieveMemories queries the retriever, absorbing any failure. Memory is
// a quality-of-response concern, never a correctness one.
func (a *Assembler) retrieveMemories(ctx context.Context, msg *channels.Message) []string {
	memories, err := a.memories.Retrieve(ctx, msg.SenderID, memoryQuery(msg))
	if err != nil {
		a.logger.Warn("memory retrieval failed, continuing without memories",
			"sender_id", msg.SenderID, "error", err)
		return nil
	}
	return memories
}

// memoryQuery derives the retrieval query for a message: plain text first,
// then the first embed's description, then its title, then a generic
// fallback.
func memoryQuery(msg *channels.Message) string {
	if text := strings.TrimSpace(msg.Content); text != "" {
		return text
	}
	if len(msg.Embeds) > 0 {
		e := msg.Embeds[0]
		if desc := strings.TrimSpace(e.Description); desc != "" {
			return desc
		}
		if title := strings.TrimSpace(e.Title); title != "" {
			return title
		}
	}
	return queryFallback
}

// RenderMessage formats one message as transcript text: the sender's
// display name, the plain text, and every embed as a delimited block. A
// message with neither text nor embed content renders a placeholder so the
// model never sees an empty line.
func RenderMessage(msg *channels.Message) string {
	var parts []string

	if text := strings.TrimSpace(msg.Content); text != "" {
		parts = append(parts, text)
	}
	for _, e := range msg.Embeds {
		if block := renderEmbed(e); block != "" {
			parts = append(parts, block)
		}
	}

	if len(parts) == 0 {
		parts = append(parts, emptyMessage)
	}

	return msg.SenderDisplayName + ": " + strings.Join(parts, "\n")
}

// renderEmbed renders one rich card between the embed sentinels. Section
// order is fixed: author, title, description, fields, image flag,
// thumbnail flag, footer. Absent sections are omitted entirely.
func renderEmbed(e channels.Embed) string {
	var b strings.Builder
	b.WriteString(embedOpen)
	b.WriteString("\n")

	if e.AuthorName != "" {
		fmt.Fprintf(&b, "作者：%s\n", e.AuthorName)
	}
	if e.Title != "" {
		fmt.Fprintf(&b, "标题：%s\n", e.Title)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, "描述:\n%s\n", e.Description)
	}
	if len(e.Fields) > 0 {
		b.WriteString("字段:\n")
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "- %s: %s\n", f.Name, f.Value)
		}
	}
	if e.HasImage {
		b.WriteString(imageNotice)
		b.WriteString("\n")
	}
	if e.HasThumbnail {
		b.WriteString(thumbNotice)
		b.WriteString("\n")
	}
	if e.FooterText != "" {
		fmt.Fprintf(&b, "页脚：%s\n", e.FooterText)
	}

	b.WriteString(embedClose)
	return b.String()
}
