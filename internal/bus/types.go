package bus

import (
	"context"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

// InboundMessage is a platform message delivered to one hosted agent.
type InboundMessage struct {
	Channel           string      `json:"channel"`  // channel instance name, e.g. "discord-solus"
	ChatID            string      `json:"chat_id"`  // platform chat/channel id
	AgentID           string      `json:"agent_id"` // receiving agent; empty = every subscriber
	PlatformMessageID string      `json:"platform_message_id,omitempty"`
	Message           a2a.Message `json:"message"` // the log entry as written to the store
}

// OutboundMessage is a reply to be sent through a channel instance.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	AgentID string `json:"agent_id"`
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"` // platform message id to thread under
}

// MessageRouter abstracts inbound/outbound message routing between channels and agent responders.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context, agentID string) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
