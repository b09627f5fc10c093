package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/bus"
)

type fakeChannel struct {
	*BaseChannel
	mu   sync.Mutex
	sent []bus.OutboundMessage
}

func newFakeChannel(platform, agentID string) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(platform, agentID, bus.New(), nil, nil, nil)}
}

func (f *fakeChannel) Start(context.Context) error { f.SetRunning(true); return nil }
func (f *fakeChannel) Stop(context.Context) error  { f.SetRunning(false); return nil }

func (f *fakeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestManager_Run(t *testing.T) {
	b := bus.New()
	m := NewManager(b, 0, 0)
	solus := newFakeChannel("discord", "solus")
	kelly := newFakeChannel("discord", "kelly")
	m.RegisterChannel(solus)
	m.RegisterChannel(kelly)

	if got := m.GetEnabledChannels(); len(got) != 2 || got[0] != "discord-kelly" {
		t.Fatalf("GetEnabledChannels = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	b.PublishOutbound(bus.OutboundMessage{Channel: "discord-solus", ChatID: "c1", Content: "a"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "discord-nobody", ChatID: "c1", Content: "lost"})
	b.PublishOutbound(bus.OutboundMessage{Channel: "discord-kelly", ChatID: "c1", Content: "b"})

	deadline := time.Now().Add(time.Second)
	for (solus.sentCount() < 1 || kelly.sentCount() < 1) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !solus.IsRunning() {
		t.Error("channel should be running")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if solus.sentCount() != 1 || kelly.sentCount() != 1 {
		t.Errorf("sent solus=%d kelly=%d", solus.sentCount(), kelly.sentCount())
	}
	if solus.IsRunning() {
		t.Error("channel should be stopped after Run returns")
	}
}

func TestManager_SendToChannel(t *testing.T) {
	m := NewManager(bus.New(), 1, 1)
	kelly := newFakeChannel("telegram", "kelly")
	m.RegisterChannel(kelly)

	if err := m.SendToChannel(context.Background(), "telegram-kelly", "-100", "standup time"); err != nil {
		t.Fatalf("SendToChannel: %v", err)
	}
	if kelly.sent[0].AgentID != "kelly" || kelly.sent[0].ChatID != "-100" {
		t.Errorf("sent = %+v", kelly.sent[0])
	}
	if err := m.SendToChannel(context.Background(), "telegram-none", "-100", "x"); err == nil {
		t.Error("unknown channel should error")
	}
	if ch, ok := m.ChannelFor("telegram", "kelly"); !ok || ch.Name() != "telegram-kelly" {
		t.Errorf("ChannelFor = %v, %v", ch, ok)
	}

	m.UnregisterChannel("telegram-kelly")
	if _, ok := m.GetChannel("telegram-kelly"); ok {
		t.Error("channel should be gone")
	}
}

func TestManager_PacedDelivery(t *testing.T) {
	m := NewManager(bus.New(), 1, 1)
	solus := newFakeChannel("discord", "solus")
	m.RegisterChannel(solus)

	ctx := context.Background()
	if err := m.deliver(ctx, bus.OutboundMessage{Channel: "discord-solus"}); err != nil {
		t.Fatalf("first deliver: %v", err)
	}
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := m.deliver(short, bus.OutboundMessage{Channel: "discord-solus"}); err == nil {
		t.Error("second send inside the same second should wait past a short deadline")
	}
}
