// Package channels defines the interfaces and types for Senpai communication
// channels. A channel delivers inbound chat events to the bot and accepts
// outbound replies; it also exposes a bounded history query per conversation
// so the pipeline can build short-term context.
package channels

import (
	"context"
	"fmt"
	"time"
)

// Channel defines the interface that every communication channel must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a text message to the given conversation, optionally as a
	// reply to a specific message.
	Send(ctx context.Context, chatID string, msg *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages. The
	// stream must be closed by Disconnect so consumers draining it can
	// exit.
	Receive() <-chan *Message

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// HistorySource is implemented by channels that can replay recent
// conversation history. Results are newest-first, excluding beforeID itself.
type HistorySource interface {
	// History returns up to limit messages from chatID sent before the
	// message identified by beforeID.
	History(ctx context.Context, chatID, beforeID string, limit int) ([]*Message, error)
}

// PresenceChannel is implemented by channels that support typing indicators
// and status updates.
type PresenceChannel interface {
	Channel

	// SendTyping shows a "typing..." indicator in the conversation.
	SendTyping(ctx context.Context, chatID string) error

	// SetStatus updates the bot's presence/status line.
	SetStatus(ctx context.Context, status string) error
}

// Message represents an inbound chat message from any channel.
type Message struct {
	// ID is the platform message identifier.
	ID string

	// Channel identifies the source channel (e.g. "discord").
	Channel string

	// SenderID is the platform user id. Stable and unique per user.
	SenderID int64

	// SenderName is the account name of the sender.
	SenderName string

	// SenderDisplayName is the per-server display name, falling back to
	// SenderName when the platform has no separate notion.
	SenderDisplayName string

	// ChatID is the conversation (channel or DM) identifier.
	ChatID string

	// IsDM indicates a direct message conversation.
	IsDM bool

	// Mentioned indicates the bot was mentioned in the message.
	Mentioned bool

	// FromSelf indicates the message was authored by the bot itself.
	FromSelf bool

	// FromBot indicates the author is a bot account (including self).
	FromBot bool

	// Content is the plain text content with bot mentions stripped.
	Content string

	// Embeds holds the rich-card attachments, in platform order.
	Embeds []Embed

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// Embed is a platform rich card attached to a message. Only the textual
// parts and media presence flags are carried; the pipeline renders them to
// text, it never fetches media.
type Embed struct {
	AuthorName   string
	Title        string
	Description  string
	Fields       []EmbedField
	FooterText   string
	HasImage     bool
	HasThumbnail bool
}

// EmbedField is a named value pair inside an embed.
type EmbedField struct {
	Name  string
	Value string
}

// OutgoingMessage represents a reply to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the reply.
	Content string

	// ReplyTo is the ID of the message being replied to (first chunk only
	// when the channel splits long content).
	ReplyTo string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrHistoryUnavailable  = fmt.Errorf("channel does not expose history")
)
