package bus

import (
	"context"
	"log/slog"
	"sync"
)

const (
	defaultInboundBuffer  = 64
	defaultOutboundBuffer = 128
)

// MessageBus routes inbound messages to per-agent queues and collects outbound replies.
// Publishing never blocks: a full queue drops the message with a warning, since a
// skipped turn is harmless and a stalled gateway is not.
type MessageBus struct {
	mu       sync.RWMutex
	inbound  map[string]chan InboundMessage
	outbound chan OutboundMessage
}

// New creates an empty bus.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(map[string]chan InboundMessage),
		outbound: make(chan OutboundMessage, defaultOutboundBuffer),
	}
}

// Register creates the inbound queue for agentID. Registering twice is a no-op.
func (b *MessageBus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inbound[agentID]; !ok {
		b.inbound[agentID] = make(chan InboundMessage, defaultInboundBuffer)
	}
}

// Agents returns the registered agent ids.
func (b *MessageBus) Agents() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.inbound))
	for id := range b.inbound {
		out = append(out, id)
	}
	return out
}

// PublishInbound delivers msg to its agent, or to every agent when AgentID is empty.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.AgentID != "" {
		ch, ok := b.inbound[msg.AgentID]
		if !ok {
			slog.Debug("bus: inbound for unregistered agent", "agent", msg.AgentID, "channel", msg.Channel)
			return
		}
		deliver(ch, msg, msg.AgentID)
		return
	}
	for id, ch := range b.inbound {
		m := msg
		m.AgentID = id
		deliver(ch, m, id)
	}
}

func deliver(ch chan InboundMessage, msg InboundMessage, agentID string) {
	select {
	case ch <- msg:
	default:
		slog.Warn("bus: inbound queue full, dropping message", "agent", agentID, "channel", msg.Channel, "message_id", msg.Message.ID)
	}
}

// ConsumeInbound blocks until a message for agentID arrives or ctx ends.
func (b *MessageBus) ConsumeInbound(ctx context.Context, agentID string) (InboundMessage, bool) {
	b.mu.RLock()
	ch, ok := b.inbound[agentID]
	b.mu.RUnlock()
	if !ok {
		return InboundMessage{}, false
	}
	select {
	case msg := <-ch:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound queues a reply for the channel manager.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("bus: outbound queue full, dropping reply", "agent", msg.AgentID, "channel", msg.Channel)
	}
}

// SubscribeOutbound blocks until a reply is queued or ctx ends.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
