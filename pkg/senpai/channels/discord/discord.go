// Package discord implements the Discord channel for Senpai using discordgo.
//
// Features:
//   - Receives guild mentions and direct messages
//   - Carries embed (rich card) content through to the pipeline
//   - Bounded newest-first history queries per conversation
//   - Chunked sends respecting the 2000 character message limit, with a
//     short pacing delay between chunks to stay under rate limits
//   - Typing indicators and presence/status updates
//   - Guild and channel allowlists
//   - Automatic reconnection via discordgo's gateway
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/akinomura/senpai/pkg/senpai/channels"
)

// messageLimit is Discord's maximum message length in characters.
const messageLimit = 2000

// chunkDelay is the pacing delay between chunks of a long reply.
const chunkDelay = 500 * time.Millisecond

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// AllowedGuilds restricts which guild (server) IDs the bot responds in.
	// Empty means respond in all guilds.
	AllowedGuilds []string `yaml:"allowed_guilds"`

	// AllowedChannels restricts which channel IDs the bot responds in.
	// Empty means respond in all channels.
	AllowedChannels []string `yaml:"allowed_channels"`

	// SendTyping sends "typing..." indicators while processing.
	SendTyping bool `yaml:"send_typing"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendTyping: true,
	}
}

// Discord implements channels.Channel, channels.HistorySource, and
// channels.PresenceChannel.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// messages is the channel for inbound messages forwarded to the bot.
	messages chan *channels.Message

	connected  atomic.Bool
	closeOnce  sync.Once
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:      cfg,
		logger:   logger.With("component", "discord"),
		messages: make(chan *channels.Message, 256),
	}
}

// ---------- Channel Interface ----------

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)

	return nil
}

// Disconnect closes the Discord gateway connection and the Receive stream,
// so manager listeners draining it can exit.
func (d *Discord) Disconnect() error {
	if d.cancel != nil {
		d.cancel()
	}
	d.connected.Store(false)
	if d.session != nil {
		d.session.Close()
	}
	d.closeOnce.Do(func() { close(d.messages) })
	d.logger.Info("discord: disconnected")
	return nil
}

// Send sends a reply to the given conversation, splitting content that
// exceeds the platform message limit into paced chunks.
func (d *Discord) Send(ctx context.Context, chatID string, msg *channels.OutgoingMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	chunks := splitMessage(msg.Content, messageLimit)
	for i, chunk := range chunks {
		msgSend := &discordgo.MessageSend{Content: chunk}
		if i == 0 && msg.ReplyTo != "" {
			msgSend.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: chatID}
		}
		if _, err := d.session.ChannelMessageSendComplex(chatID, msgSend); err != nil {
			d.errorCount.Add(1)
			return fmt.Errorf("discord: sending message: %w", err)
		}
		if i < len(chunks)-1 {
			select {
			case <-time.After(chunkDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Receive returns the inbound messages channel.
func (d *Discord) Receive() <-chan *channels.Message {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := d.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// ---------- HistorySource Interface ----------

// History returns up to limit messages sent before beforeID, newest first.
func (d *Discord) History(ctx context.Context, chatID, beforeID string, limit int) ([]*channels.Message, error) {
	if d.session == nil {
		return nil, channels.ErrChannelDisconnected
	}

	raw, err := d.session.ChannelMessages(chatID, limit, beforeID, "", "")
	if err != nil {
		return nil, fmt.Errorf("discord: fetching history: %w", err)
	}

	msgs := make([]*channels.Message, 0, len(raw))
	for _, m := range raw {
		msg, err := d.convertMessage(m, "")
		if err != nil {
			d.logger.Debug("discord: skipping history entry", "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ---------- PresenceChannel Interface ----------

// SendTyping shows a typing indicator in the conversation.
func (d *Discord) SendTyping(ctx context.Context, chatID string) error {
	if d.session == nil || !d.cfg.SendTyping {
		return nil
	}
	return d.session.ChannelTyping(chatID)
}

// SetStatus updates the bot's status line.
func (d *Discord) SetStatus(ctx context.Context, status string) error {
	if d.session == nil {
		return nil
	}
	return d.session.UpdateGameStatus(0, status)
}

// ---------- Event Handlers ----------

// onMessageCreate converts inbound Discord messages and forwards them.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Events raced against Disconnect are dropped; messages is closed there.
	if !d.connected.Load() {
		return
	}

	// Apply guild filter.
	if len(d.cfg.AllowedGuilds) > 0 && m.GuildID != "" && !contains(d.cfg.AllowedGuilds, m.GuildID) {
		return
	}

	// Apply channel filter.
	if len(d.cfg.AllowedChannels) > 0 && !contains(d.cfg.AllowedChannels, m.ChannelID) {
		return
	}

	incoming, err := d.convertMessage(m.Message, s.State.User.ID)
	if err != nil {
		d.logger.Warn("discord: dropping message", "error", err)
		return
	}

	d.lastMsg.Store(time.Now())
	d.errorCount.Store(0)

	select {
	case d.messages <- incoming:
	default:
		d.logger.Warn("discord: message buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// convertMessage maps a discordgo message onto the channel-neutral form.
// botID may be empty when the caller does not need mention detection
// (history replay). Messages whose author id is not numeric are rejected
// here rather than surfacing later as an identity lookup for user 0.
func (d *Discord) convertMessage(m *discordgo.Message, botID string) (*channels.Message, error) {
	senderID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("discord: non-numeric author id %q on message %s", m.Author.ID, m.ID)
	}

	mentioned := false
	for _, u := range m.Mentions {
		if botID != "" && u.ID == botID {
			mentioned = true
			break
		}
	}

	content := m.Content
	if botID != "" {
		content = stripMention(content, botID)
	}

	msg := &channels.Message{
		ID:                m.ID,
		Channel:           "discord",
		SenderID:          senderID,
		SenderName:        m.Author.Username,
		SenderDisplayName: displayName(m),
		ChatID:            m.ChannelID,
		IsDM:              m.GuildID == "",
		Mentioned:         mentioned,
		FromSelf:          botID != "" && m.Author.ID == botID,
		FromBot:           m.Author.Bot,
		Content:           content,
		Timestamp:         m.Timestamp,
	}

	for _, e := range m.Embeds {
		msg.Embeds = append(msg.Embeds, convertEmbed(e))
	}

	return msg, nil
}

// convertEmbed maps a discordgo embed onto the channel-neutral rich card.
func convertEmbed(e *discordgo.MessageEmbed) channels.Embed {
	out := channels.Embed{
		Title:       e.Title,
		Description: e.Description,
	}
	if e.Author != nil {
		out.AuthorName = e.Author.Name
	}
	if e.Footer != nil {
		out.FooterText = e.Footer.Text
	}
	for _, f := range e.Fields {
		if f == nil {
			continue
		}
		out.Fields = append(out.Fields, channels.EmbedField{Name: f.Name, Value: f.Value})
	}
	out.HasImage = e.Image != nil && e.Image.URL != ""
	out.HasThumbnail = e.Thumbnail != nil && e.Thumbnail.URL != ""
	return out
}

// ---------- Helpers ----------

// displayName resolves the most specific name available for the author:
// guild nickname, then global display name, then account name.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// stripMention removes direct mentions of the bot from the content.
func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}

// splitMessage splits text into chunks respecting the platform limit,
// preferring newline boundaries. The limit is in characters, not bytes, so
// cuts never land inside a multi-byte rune.
func splitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}
		cutAt := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cutAt = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cutAt]))
		runes = runes[cutAt:]
	}
	return chunks
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*Discord)(nil)
	_ channels.HistorySource   = (*Discord)(nil)
	_ channels.PresenceChannel = (*Discord)(nil)
)
