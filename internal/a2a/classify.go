package a2a

import (
	"context"
	"log/slog"
	"strings"
)

// RoomClassifier maps a room name to a RoomClass by substring match.
type RoomClassifier struct {
	registry  RoomRegistry
	standup   []string
	knowledge []string
}

// NewRoomClassifier creates a classifier. registry may be nil.
func NewRoomClassifier(registry RoomRegistry, standup, knowledge []string) *RoomClassifier {
	return &RoomClassifier{
		registry:  registry,
		standup:   lowerAll(standup),
		knowledge: lowerAll(knowledge),
	}
}

// ClassifyName classifies a room by name. Standup patterns win over knowledge patterns.
func (c *RoomClassifier) ClassifyName(name string) RoomClass {
	lower := strings.ToLower(name)
	if lower == "" {
		return RoomGeneral
	}
	for _, p := range c.standup {
		if strings.Contains(lower, p) {
			return RoomStandup
		}
	}
	for _, p := range c.knowledge {
		if strings.Contains(lower, p) {
			return RoomKnowledge
		}
	}
	return RoomGeneral
}

// RoomName resolves the name used for classification: registry display name,
// then the message's channel name, then empty.
func (c *RoomClassifier) RoomName(ctx context.Context, msg Message) string {
	if c.registry != nil && msg.RoomID != "" {
		room, err := c.registry.GetRoom(ctx, msg.RoomID)
		if err != nil {
			slog.Debug("a2a: room lookup failed", "room_id", msg.RoomID, "error", err)
		} else if room != nil && room.DisplayName != "" {
			return room.DisplayName
		}
	}
	return msg.Content.ChannelName
}

// Classify resolves the room name for msg and classifies it.
func (c *RoomClassifier) Classify(ctx context.Context, msg Message) RoomClass {
	return c.ClassifyName(c.RoomName(ctx, msg))
}

// SenderClassifier decides whether a message author is a human or an agent.
type SenderClassifier struct {
	roster      *Roster
	knownHumans map[string]bool
}

// NewSenderClassifier creates a classifier over roster and a list of names that are always human.
func NewSenderClassifier(roster *Roster, knownHumans []string) *SenderClassifier {
	h := make(map[string]bool, len(knownHumans))
	for _, n := range knownHumans {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			h[n] = true
		}
	}
	return &SenderClassifier{roster: roster, knownHumans: h}
}

// Classify returns the sender class and, when the sender matched the roster, the member.
// The bot flag always wins. A known human name is human even if it contains a roster name.
func (c *SenderClassifier) Classify(msg Message) (SenderClass, *Member) {
	name := msg.Content.SenderDisplayName
	m, matched := c.roster.Match(name)
	if msg.Content.Metadata.IsBot {
		if matched {
			return SenderAgent, &m
		}
		return SenderAgent, nil
	}
	if c.knownHumans[strings.ToLower(strings.TrimSpace(name))] {
		return SenderHuman, nil
	}
	if matched {
		return SenderAgent, &m
	}
	return SenderHuman, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
