// Package discord is the Discord channel adapter: a thin shell around
// discordgo that turns Discord messages into queue envelopes and queue
// envelopes back into Discord messages.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyagi/tinyagi/internal/channels"
	"github.com/tinyagi/tinyagi/internal/envelope"
	"github.com/tinyagi/tinyagi/internal/queue"
)

// discordMaxMessageLen is Discord's hard per-message character limit.
const discordMaxMessageLen = 2000

// Config holds Discord adapter configuration.
type Config struct {
	Token           string   `json:"token" yaml:"token"`
	AllowedGuilds   []string `json:"allowed_guilds" yaml:"allowed_guilds"`
	AllowedChannels []string `json:"allowed_channels" yaml:"allowed_channels"`
}

// Adapter implements channels.Adapter over a discordgo session.
type Adapter struct {
	cfg     Config
	queue   *queue.Spooler
	log     *slog.Logger
	session *discordgo.Session
}

// New constructs a Discord adapter.
func New(cfg Config, q *queue.Spooler, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{cfg: cfg, queue: q, log: log.With("component", "channels.discord")}
}

// Name returns "discord".
func (a *Adapter) Name() string { return "discord" }

// Connect opens the Discord gateway connection and registers the message
// handler.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	session, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: new session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(a.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.session = session
	a.log.Info("discord: connected", "bot", session.State.User.Username)
	return nil
}

// Disconnect closes the Discord gateway connection.
func (a *Adapter) Disconnect() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if !a.guildAllowed(m.GuildID) || !a.channelAllowed(m.ChannelID) {
		return
	}

	env := &envelope.Envelope{
		Channel:   "discord",
		Sender:    m.Author.Username,
		SenderID:  m.ChannelID,
		Message:   m.Content,
		MessageID: m.ID,
		Timestamp: m.Timestamp.UnixMilli(),
	}
	if err := channels.EnqueueInbound(a.queue, env); err != nil {
		a.log.Error("discord: enqueue inbound failed", "error", err)
	}
}

func (a *Adapter) guildAllowed(guildID string) bool {
	if len(a.cfg.AllowedGuilds) == 0 || guildID == "" {
		return true
	}
	for _, id := range a.cfg.AllowedGuilds {
		if id == guildID {
			return true
		}
	}
	return false
}

func (a *Adapter) channelAllowed(channelID string) bool {
	if len(a.cfg.AllowedChannels) == 0 {
		return true
	}
	for _, id := range a.cfg.AllowedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// Deliver posts env.Message to the channel identified by env.SenderID,
// the queue contract's convention for an outgoing reply's destination.
// Discord's channel.ChannelID matches the SenderID recorded on the way in
// (see onMessageCreate), so a reply round-trips to the same channel.
func (a *Adapter) Deliver(ctx context.Context, env *envelope.Envelope) error {
	if a.session == nil {
		return fmt.Errorf("discord: session not connected")
	}
	for _, chunk := range splitMessage(env.Message, discordMaxMessageLen) {
		if _, err := a.session.ChannelMessageSend(env.SenderID, chunk); err != nil {
			return fmt.Errorf("discord: send: %w", err)
		}
	}
	return nil
}

// splitMessage breaks text into Discord-sized chunks, preferring to split
// on a newline so a chunk boundary doesn't land mid-sentence.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

var _ channels.Adapter = (*Adapter)(nil)
