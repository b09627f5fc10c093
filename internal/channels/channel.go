// Package channels connects chat platforms to the agent runtime.
//
// Every hosted agent runs its own bot account on each platform, so one channel instance
// exists per (platform, agent) pair. Each instance writes what it sees into the shared
// room log and publishes it to its own agent on the bus. Replies sent through an instance
// are written back to the log as well, because some platforms (Telegram) never deliver a
// bot's messages to other bots.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/bus"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the instance name (e.g. "discord-solus").
	Name() string

	// Platform returns the platform identifier ("discord", "telegram").
	Platform() string

	// AgentID returns the hosted agent this instance belongs to.
	AgentID() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// InstanceName returns the channel instance name for an agent on a platform.
func InstanceName(platform, agentID string) string {
	return platform + "-" + agentID
}

// RoomID returns the shared-log room id for a platform chat.
func RoomID(platform, chatID string) string {
	return platform + ":" + chatID
}

// MessageID returns the shared-log id for a platform message. Every bot that sees the
// same platform message derives the same id, so the log stores it once.
func MessageID(platform, chatID, platformMessageID string) string {
	return platform + ":" + chatID + ":" + platformMessageID
}

// SenderEntityID returns the log entity id for a platform user that is not a known agent.
func SenderEntityID(platform, userID string) string {
	return platform + ":" + userID
}

// Incoming is a platform message converted to neutral fields by an adapter.
type Incoming struct {
	PlatformMessageID string
	ChatID            string
	ChatName          string // channel or group title, used for room classification
	SenderID          string // platform user id; may be "id|username" for allowlist matching
	SenderName        string
	IsBot             bool
	Text              string
	SentAt            time.Time

	ReplyToAuthorID   string // platform user id of the replied-to message's author
	ReplyToAuthorName string
	ReplyToIsBot      bool
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	platform  string
	agentID   string
	bus       *bus.MessageBus
	messages  store.MessageStore
	rooms     store.RoomStore
	directory *Directory
	allowList []string
	limiter   *SenderRateLimiter

	mu        sync.RWMutex
	running   bool
	roomNames sync.Map // room id -> last registered display name
}

// NewBaseChannel creates a new BaseChannel for one agent's bot on a platform.
func NewBaseChannel(platform, agentID string, msgBus *bus.MessageBus, stores *store.Stores, directory *Directory, allowList []string) *BaseChannel {
	c := &BaseChannel{
		name:      InstanceName(platform, agentID),
		platform:  platform,
		agentID:   agentID,
		bus:       msgBus,
		directory: directory,
		allowList: allowList,
		limiter:   NewSenderRateLimiter(),
	}
	if stores != nil {
		c.messages = stores.Messages
		c.rooms = stores.Rooms
	}
	return c
}

// Name returns the channel instance name.
func (c *BaseChannel) Name() string { return c.name }

// Platform returns the platform identifier.
func (c *BaseChannel) Platform() string { return c.platform }

// AgentID returns the hosted agent this instance belongs to.
func (c *BaseChannel) AgentID() string { return c.agentID }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) {
	c.mu.Lock()
	c.running = running
	c.mu.Unlock()
}

// Directory returns the shared bot directory.
func (c *BaseChannel) Directory() *Directory { return c.directory }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID := trimmed
		allowedUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == allowed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}

	return false
}

// userID strips the "|username" suffix of a compound sender id.
func userID(senderID string) string {
	if idx := strings.IndexByte(senderID, '|'); idx > 0 {
		return senderID[:idx]
	}
	return senderID
}

// Entry converts an incoming platform message into a shared-log entry.
// Senders known to the directory are recorded under their agent id.
func (c *BaseChannel) Entry(in Incoming) a2a.Message {
	uid := userID(in.SenderID)
	msg := a2a.Message{
		ID:     MessageID(c.platform, in.ChatID, in.PlatformMessageID),
		RoomID: RoomID(c.platform, in.ChatID),
		Content: a2a.Content{
			Text:              in.Text,
			SenderDisplayName: in.SenderName,
			ChannelName:       in.ChatName,
			Metadata:          a2a.Metadata{IsBot: in.IsBot},
		},
		CreatedAt: in.SentAt.UTC(),
	}
	if agentID, ok := c.directory.Resolve(c.platform, uid); ok {
		msg.SenderEntityID = agentID
		msg.AgentID = agentID
	} else {
		msg.SenderEntityID = SenderEntityID(c.platform, uid)
	}

	if in.ReplyToAuthorID != "" || in.ReplyToAuthorName != "" {
		rt := &a2a.ReplyTo{
			AuthorID:          SenderEntityID(c.platform, in.ReplyToAuthorID),
			IsBot:             in.ReplyToIsBot,
			AuthorDisplayName: in.ReplyToAuthorName,
		}
		if agentID, ok := c.directory.Resolve(c.platform, in.ReplyToAuthorID); ok {
			rt.AuthorID = agentID
		}
		msg.Content.Metadata.ReplyTo = rt
	}
	return msg
}

// HandleMessage writes an incoming message to the shared log and, unless this agent
// wrote it or the sender is not allowed, publishes it to this agent's responder.
func (c *BaseChannel) HandleMessage(ctx context.Context, in Incoming) {
	msg := c.Entry(in)
	c.registerRoom(ctx, msg.RoomID, in.ChatName)

	if c.messages != nil {
		if err := c.messages.Append(ctx, msg); err != nil {
			slog.Warn("channels: append to room log failed", "channel", c.name, "room_id", msg.RoomID, "error", err)
		}
	}

	if msg.AgentID == c.agentID {
		return
	}
	if !c.IsAllowed(in.SenderID) {
		slog.Debug("channels: sender not allowed", "channel", c.name, "sender", in.SenderID)
		return
	}
	if !c.limiter.Allow(msg.SenderEntityID) {
		slog.Warn("channels: sender rate limited", "channel", c.name, "sender", msg.SenderEntityID)
		return
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:           c.name,
		ChatID:            in.ChatID,
		AgentID:           c.agentID,
		PlatformMessageID: in.PlatformMessageID,
		Message:           msg,
	})
}

// RecordSent writes a message this agent just sent to the shared log.
func (c *BaseChannel) RecordSent(ctx context.Context, chatID, chatName, platformMessageID, text, displayName string, sentAt time.Time) error {
	if c.messages == nil {
		return nil
	}
	msg := a2a.Message{
		ID:             MessageID(c.platform, chatID, platformMessageID),
		RoomID:         RoomID(c.platform, chatID),
		SenderEntityID: c.agentID,
		AgentID:        c.agentID,
		Content: a2a.Content{
			Text:              text,
			SenderDisplayName: displayName,
			ChannelName:       chatName,
			Metadata:          a2a.Metadata{IsBot: true},
		},
		CreatedAt: sentAt.UTC(),
	}
	if err := c.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("record sent message: %w", err)
	}
	return nil
}

// registerRoom upserts the room registry when a chat is first seen or renamed.
func (c *BaseChannel) registerRoom(ctx context.Context, roomID, name string) {
	if c.rooms == nil || name == "" {
		return
	}
	if prev, ok := c.roomNames.Load(roomID); ok && prev.(string) == name {
		return
	}
	room := a2a.Room{ID: roomID, DisplayName: name, Metadata: map[string]string{"platform": c.platform}}
	if err := c.rooms.UpsertRoom(ctx, room); err != nil {
		slog.Warn("channels: register room failed", "channel", c.name, "room_id", roomID, "error", err)
		return
	}
	c.roomNames.Store(roomID, name)
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// SplitMessage splits text into chunks no longer than maxLen, preferring line breaks.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > maxLen {
		cut := strings.LastIndex(text[:maxLen], "\n")
		if cut <= 0 {
			cut = maxLen
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
