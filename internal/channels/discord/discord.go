package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/crosstalk/internal/bus"
	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// Platform is the platform identifier used in room and message ids.
const Platform = "discord"

// maxMessageLen is Discord's per-message content limit.
const maxMessageLen = 2000

// Channel connects one agent's Discord bot via gateway events.
type Channel struct {
	*channels.BaseChannel
	session     *discordgo.Session
	displayName string
	botUserID   string // populated on start
}

// New creates a Discord channel for one hosted agent.
func New(agent config.AgentSpec, msgBus *bus.MessageBus, stores *store.Stores, dir *channels.Directory) (*Channel, error) {
	if agent.Discord.Token == "" {
		return nil, fmt.Errorf("discord token is required for agent %s", agent.ID)
	}
	session, err := discordgo.New("Bot " + agent.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel(Platform, agent.ID, msgBus, stores, dir, agent.Discord.AllowFrom),
		session:     session,
		displayName: agent.Name,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord bot", "agent", c.AgentID())

	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, m)
	})

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	c.Directory().Register(Platform, user.ID, c.AgentID())

	c.SetRunning(true)
	slog.Info("discord bot connected", "agent", c.AgentID(), "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot", "agent", c.AgentID())
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel and records it in the room log.
// The first chunk threads under msg.ReplyTo when set.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}
	if msg.Content == "" {
		return nil
	}

	chatName := c.channelName(channelID)
	for i, chunk := range channels.SplitMessage(msg.Content, maxMessageLen) {
		send := &discordgo.MessageSend{Content: chunk}
		if i == 0 && msg.ReplyTo != "" {
			send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: channelID}
		}
		sent, err := c.session.ChannelMessageSendComplex(channelID, send)
		if err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
		if err := c.RecordSent(ctx, channelID, chatName, sent.ID, chunk, c.displayName, sent.Timestamp); err != nil {
			slog.Warn("discord: record sent message failed", "agent", c.AgentID(), "channel_id", channelID, "error", err)
		}
	}
	return nil
}

// handleMessage converts a gateway event and hands it to the shared ingress.
// Own messages are passed through too, so the log stays complete when the bot
// posts from another process.
func (c *Channel) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	in := toIncoming(m.Message, c.channelName(m.ChannelID), c.mentionName)
	if in.Text == "" {
		return
	}

	slog.Debug("discord message received",
		"agent", c.AgentID(),
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"is_bot", m.Author.Bot,
		"preview", channels.Truncate(in.Text, 50),
	)
	c.HandleMessage(ctx, in)
}

// mentionName names a mentioned user: the roster name for agents, so address
// detection sees "@Solus" rather than "<@id>", and the display name for everyone else.
func (c *Channel) mentionName(u *discordgo.User) string {
	if agentID, ok := c.Directory().Resolve(Platform, u.ID); ok {
		return c.Directory().DisplayName(agentID)
	}
	return displayName(nil, u)
}

// channelName resolves a channel's name from the state cache, then the REST API.
func (c *Channel) channelName(channelID string) string {
	if c.session.State != nil {
		if ch, err := c.session.State.Channel(channelID); err == nil && ch != nil {
			return ch.Name
		}
	}
	ch, err := c.session.Channel(channelID)
	if err != nil {
		slog.Debug("discord: channel lookup failed", "channel_id", channelID, "error", err)
		return ""
	}
	return ch.Name
}
