package standup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

type fakePoster struct {
	channel, chatID, text string
	err                   error
}

func (p *fakePoster) SendToChannel(_ context.Context, channelName, chatID, content string) error {
	p.channel, p.chatID, p.text = channelName, chatID, content
	return p.err
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Agents = []config.AgentSpec{
		{ID: "solus", Name: "Solus"},
		{ID: "kel", Name: "Kelly Bot", Aliases: config.FlexibleStringSlice{"Kelly"}},
	}
	cfg.Standup.Channel = "discord"
	cfg.Standup.ChatID = "c-standup"
	return cfg
}

func TestFacilitatorAgent(t *testing.T) {
	cfg := testConfig()
	a, ok := FacilitatorAgent(cfg)
	if !ok || a.ID != "kel" {
		t.Fatalf("FacilitatorAgent = %+v, %v", a, ok)
	}

	cfg.A2A.Facilitator = "nobody"
	if _, ok := FacilitatorAgent(cfg); ok {
		t.Error("unknown facilitator resolved")
	}
	cfg.A2A.Facilitator = ""
	if _, ok := FacilitatorAgent(cfg); ok {
		t.Error("empty facilitator resolved")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad schedule", func(c *config.Config) { c.Standup.Schedule = "every morning" }},
		{"missing chat", func(c *config.Config) { c.Standup.ChatID = "" }},
		{"facilitator not hosted", func(c *config.Config) { c.A2A.Facilitator = "Vince" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if _, err := New(cfg, NewRound(cfg), &fakePoster{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestScheduler_Next(t *testing.T) {
	s, err := New(testConfig(), NewRound(testConfig()), &fakePoster{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		ref  time.Time
		want time.Time
	}{
		{time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := s.Next(tt.ref)
		if err != nil {
			t.Fatalf("Next(%v): %v", tt.ref, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Next(%v) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}

func TestScheduler_Kickoff(t *testing.T) {
	p := &fakePoster{}
	s, err := New(testConfig(), NewRound(testConfig()), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Kickoff(context.Background()); err != nil {
		t.Fatalf("Kickoff: %v", err)
	}
	if p.channel != "discord-kel" || p.chatID != "c-standup" || p.text != "Good morning team, standup time.\n\n@Solus, you're up." {
		t.Errorf("posted %q %q %q", p.channel, p.chatID, p.text)
	}

	p.err = errors.New("gateway closed")
	if err := s.Kickoff(context.Background()); err == nil {
		t.Error("poster error should surface")
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s, err := New(testConfig(), NewRound(testConfig()), &fakePoster{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Errorf("Run = %v", err)
	}
}
