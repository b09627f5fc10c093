// Package standup runs the facilitator side of a standup: the scheduled kickoff and the
// hand-offs between reporters.
package standup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

// Poster sends a message through a named channel instance.
type Poster interface {
	SendToChannel(ctx context.Context, channelName, chatID, content string) error
}

// Scheduler fires the kickoff at every tick of a UTC cron expression.
type Scheduler struct {
	expr        string
	channelName string
	chatID      string
	round       *Round
	poster      Poster
	now         func() time.Time
}

// New builds the scheduler for the facilitator hosted by this process.
func New(cfg *config.Config, round *Round, poster Poster) (*Scheduler, error) {
	sc := cfg.Standup
	if !gronx.New().IsValid(sc.Schedule) {
		return nil, fmt.Errorf("invalid standup schedule %q", sc.Schedule)
	}
	if sc.Channel == "" || sc.ChatID == "" {
		return nil, fmt.Errorf("standup channel and chat_id are required")
	}
	fac, ok := FacilitatorAgent(cfg)
	if !ok {
		return nil, fmt.Errorf("standup facilitator %q is not hosted by this process", cfg.A2A.Facilitator)
	}
	return &Scheduler{
		expr:        sc.Schedule,
		channelName: channels.InstanceName(sc.Channel, fac.ID),
		chatID:      sc.ChatID,
		round:       round,
		poster:      poster,
		now:         time.Now,
	}, nil
}

// FacilitatorAgent returns the hosted agent whose name or alias equals the configured facilitator.
func FacilitatorAgent(cfg *config.Config) (config.AgentSpec, bool) {
	want := strings.TrimSpace(cfg.A2A.Facilitator)
	if want == "" {
		return config.AgentSpec{}, false
	}
	for _, a := range cfg.Agents {
		if strings.EqualFold(a.Name, want) || strings.EqualFold(a.ID, want) {
			return a, true
		}
		for _, alias := range a.Aliases {
			if strings.EqualFold(alias, want) {
				return a, true
			}
		}
	}
	return config.AgentSpec{}, false
}

// Next returns the first tick strictly after ref, in UTC.
func (s *Scheduler) Next(ref time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(s.expr, ref.UTC(), false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next standup tick: %w", err)
	}
	return next, nil
}

// Run posts the kickoff at each tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("standup scheduler started", "schedule", s.expr, "channel", s.channelName, "chat_id", s.chatID)
	for {
		next, err := s.Next(s.now())
		if err != nil {
			return err
		}
		slog.Debug("standup: next kickoff", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("standup scheduler stopped")
			return nil
		case <-timer.C:
		}

		if err := s.Kickoff(ctx); err != nil {
			slog.Error("standup: kickoff failed", "channel", s.channelName, "error", err)
		}
	}
}

// Kickoff posts the kickoff message now.
func (s *Scheduler) Kickoff(ctx context.Context) error {
	if err := s.poster.SendToChannel(ctx, s.channelName, s.chatID, s.round.Kickoff()); err != nil {
		return fmt.Errorf("post standup kickoff: %w", err)
	}
	slog.Info("standup: kickoff posted", "channel", s.channelName, "chat_id", s.chatID, "order", s.round.Order())
	return nil
}
