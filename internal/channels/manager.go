package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/crosstalk/internal/bus"
)

// stopTimeout bounds channel shutdown after the run context ends.
const stopTimeout = 10 * time.Second

// Manager manages all registered channel instances, handling their lifecycle
// and routing outbound replies to the correct instance.
type Manager struct {
	channels map[string]Channel
	limiters map[string]*rate.Limiter
	bus      *bus.MessageBus
	limit    rate.Limit
	burst    int
	mu       sync.RWMutex
}

// NewManager creates a new channel manager. Outbound sends are paced per instance at
// sendsPerSecond with the given burst; sendsPerSecond <= 0 disables pacing.
func NewManager(msgBus *bus.MessageBus, sendsPerSecond float64, burst int) *Manager {
	limit := rate.Inf
	if sendsPerSecond > 0 {
		limit = rate.Limit(sendsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Manager{
		channels: make(map[string]Channel),
		limiters: make(map[string]*rate.Limiter),
		bus:      msgBus,
		limit:    limit,
		burst:    burst,
	}
}

// Run starts all channels, dispatches outbound replies until ctx ends, then stops all channels.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.StartAll(ctx); err != nil {
		return err
	}
	m.dispatchOutbound(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return m.StopAll(stopCtx)
}

// StartAll starts all registered channels. A channel that fails to start is logged and skipped.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	slog.Info("starting all channels")
	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	slog.Info("all channels started")
	return nil
}

// StopAll gracefully stops all channels.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slog.Info("stopping all channels")
	for name, channel := range m.channels {
		if !channel.IsRunning() {
			continue
		}
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	slog.Info("all channels stopped")
	return nil
}

// dispatchOutbound consumes outbound replies from the bus and sends them through
// the originating channel instance.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	slog.Info("outbound dispatcher started")
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			slog.Info("outbound dispatcher stopped")
			return
		}
		if err := m.deliver(ctx, msg); err != nil {
			slog.Error("error sending message to channel", "channel", msg.Channel, "agent", msg.AgentID, "error", err)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, msg bus.OutboundMessage) error {
	m.mu.RLock()
	channel, exists := m.channels[msg.Channel]
	limiter := m.limiters[msg.Channel]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("channel %s not found", msg.Channel)
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pace send: %w", err)
		}
	}
	return channel.Send(ctx, msg)
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// ChannelFor returns the instance of platform owned by agentID.
func (m *Manager) ChannelFor(platform, agentID string) (Channel, bool) {
	return m.GetChannel(InstanceName(platform, agentID))
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]interface{})
	for name, channel := range m.channels {
		status[name] = map[string]interface{}{
			"platform": channel.Platform(),
			"agent":    channel.AgentID(),
			"running":  channel.IsRunning(),
		}
	}
	return status
}

// GetEnabledChannels returns the sorted names of all registered channels.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterChannel adds a channel to the manager under its instance name.
func (m *Manager) RegisterChannel(channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel.Name()] = channel
	m.limiters[channel.Name()] = rate.NewLimiter(m.limit, m.burst)
}

// UnregisterChannel removes a channel from the manager.
func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
	delete(m.limiters, name)
}

// SendToChannel delivers a message to a specific channel by name, bypassing the bus.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	channel, exists := m.channels[channelName]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	return channel.Send(ctx, bus.OutboundMessage{
		Channel: channelName,
		ChatID:  chatID,
		AgentID: channel.AgentID(),
		Content: content,
	})
}
