package a2a

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

var baseTime = time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC)

const (
	roomStandup   = "r-standup"
	roomKnowledge = "r-knowledge"
	roomGeneral   = "r-general"
)

type fakeHistory struct {
	msgs  []Message
	err   error
	delay time.Duration // ignores ctx while sleeping
	calls atomic.Int32
}

func (f *fakeHistory) RecentMessages(_ context.Context, _ string, count int) ([]Message, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := f.msgs
	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return append([]Message(nil), out...), nil
}

type fakeRegistry struct {
	rooms map[string]*Room
	err   error
}

func (f *fakeRegistry) GetRoom(_ context.Context, id string) (*Room, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rooms[id], nil
}

func testRegistry() *fakeRegistry {
	return &fakeRegistry{rooms: map[string]*Room{
		roomStandup:   {ID: roomStandup, DisplayName: "daily-standup"},
		roomKnowledge: {ID: roomKnowledge, DisplayName: "knowledge-intake"},
		roomGeneral:   {ID: roomGeneral, DisplayName: "general"},
	}}
}

func testRoster() *Roster {
	return NewRoster([]config.RosterEntry{
		{ID: "solus", Name: "Solus", Aliases: config.FlexibleStringSlice{"sol"}},
		{ID: "kelly", Name: "Kelly"},
		{ID: "vince", Name: "VINCE"},
	})
}

var identities = map[string]Identity{
	"solus": {ID: "solus", DisplayName: "Solus"},
	"kelly": {ID: "kelly", DisplayName: "Kelly"},
	"vince": {ID: "vince", DisplayName: "VINCE"},
}

func testConfig() config.A2AConfig {
	return config.Default().A2A
}

func newTestProtocol(self string, cfg config.A2AConfig, history HistoryReader) *Protocol {
	return New(cfg, identities[self], testRoster(), history, testRegistry())
}

// agentMsg is a message written by an agent runtime.
func agentMsg(id, room, agentID, name string, sec int) Message {
	return Message{
		ID:             id,
		RoomID:         room,
		SenderEntityID: agentID,
		AgentID:        agentID,
		Content: Content{
			Text:              "message " + id,
			SenderDisplayName: name,
			Metadata:          Metadata{IsBot: true},
		},
		CreatedAt: baseTime.Add(time.Duration(sec) * time.Second),
	}
}

// humanMsg is a message posted by a human through a channel adapter.
func humanMsg(id, room, userID, name, text string, sec int) Message {
	return Message{
		ID:             id,
		RoomID:         room,
		SenderEntityID: userID,
		Content: Content{
			Text:              text,
			SenderDisplayName: name,
		},
		CreatedAt: baseTime.Add(time.Duration(sec) * time.Second),
	}
}

// alternating returns [A, me, A, me, A] in room with A = vince and me = solus.
func alternating(room string) []Message {
	return []Message{
		agentMsg("m1", room, "vince", "VINCE", 1),
		agentMsg("m2", room, "solus", "Solus", 2),
		agentMsg("m3", room, "vince", "VINCE", 3),
		agentMsg("m4", room, "solus", "Solus", 4),
		agentMsg("m5", room, "vince", "VINCE", 5),
	}
}

var errStorage = errors.New("storage unavailable")
