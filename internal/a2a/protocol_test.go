package a2a

import (
	"context"
	"strings"
	"testing"
)

func TestClassifyAndArbitrate_StandupHumanSingleResponder(t *testing.T) {
	msg := humanMsg("h1", roomStandup, "u1", "yves", "morning all, what's on deck?", 1)
	responders := 0
	for _, self := range []string{"solus", "kelly", "vince"} {
		d := newTestProtocol(self, testConfig(), &fakeHistory{}).ClassifyAndArbitrate(context.Background(), msg)
		if !d.SkipEvaluation {
			t.Errorf("%s: SkipEvaluation = false", self)
		}
		if d.ShouldRespond {
			responders++
			if self != "kelly" {
				t.Errorf("%s answered a standup human, only the facilitator may", self)
			}
			if !strings.Contains(d.Reason, "single responder") {
				t.Errorf("reason = %q", d.Reason)
			}
		} else if !strings.Contains(d.Reason, "only facilitator") {
			t.Errorf("%s: reason = %q", self, d.Reason)
		}
	}
	if responders != 1 {
		t.Errorf("responders = %d, want exactly 1", responders)
	}
}

func TestClassifyAndArbitrate_StandupAgentCalledByName(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"@solus, go.", true},
		{"Solus, you're up.", true},
		{"Thanks VINCE. Over to Solus.", true},
		{"Solus what do you see?", true},
		{"VINCE just reported. Here is the summary.", false},
		{"I think Solus covered that yesterday.", false},
		{"", false},
	}
	p := newTestProtocol("solus", testConfig(), &fakeHistory{})
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			msg := agentMsg("k1", roomStandup, "kelly", "Kelly", 1)
			msg.Content.Text = tt.text
			d := p.ClassifyAndArbitrate(context.Background(), msg)
			if d.ShouldRespond != tt.want {
				t.Errorf("ShouldRespond = %v, want %v (%s)", d.ShouldRespond, tt.want, d.Reason)
			}
			if !d.SkipEvaluation {
				t.Error("standup decisions are final")
			}
			if !strings.Contains(d.Reason, "called by name") {
				t.Errorf("reason = %q", d.Reason)
			}
		})
	}
}

func TestClassifyAndArbitrate_NonStandup(t *testing.T) {
	p := newTestProtocol("solus", testConfig(), &fakeHistory{})
	tests := []struct {
		name   string
		msg    Message
		reason string
	}{
		{"general human", humanMsg("h", roomGeneral, "u1", "yves", "hi", 1), "needs full relevance evaluation"},
		{"general agent", agentMsg("a", roomGeneral, "vince", "VINCE", 1), "needs full relevance evaluation"},
		{"knowledge agent", agentMsg("a", roomKnowledge, "vince", "VINCE", 1), "no exchange limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.ClassifyAndArbitrate(context.Background(), tt.msg)
			if d.SkipEvaluation || !d.ShouldRespond {
				t.Errorf("decision = %+v", d)
			}
			if !strings.Contains(d.Reason, tt.reason) {
				t.Errorf("reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxExchanges = 2

	standupCalled := agentMsg("k2", roomStandup, "kelly", "Kelly", 3)
	standupCalled.Content.Text = "Solus, anything else?"

	tests := []struct {
		name      string
		self      string
		history   []Message
		msg       Message
		want      bool
		stage     Stage
		relevance bool
		guard     bool
	}{
		{
			name:  "standup human to non-facilitator",
			self:  "solus",
			msg:   humanMsg("h", roomStandup, "u1", "yves", "hi", 1),
			stage: StageArbitrator,
		},
		{
			name:  "standup human to facilitator",
			self:  "kelly",
			msg:   humanMsg("h", roomStandup, "u1", "yves", "hi", 1),
			want:  true,
			stage: StageArbitrator,
		},
		{
			name: "standup called by name but standup budget spent",
			self: "solus",
			history: []Message{
				agentMsg("k1", roomStandup, "kelly", "Kelly", 1),
				agentMsg("s1", roomStandup, "solus", "Solus", 2),
				standupCalled,
			},
			msg:   standupCalled,
			stage: StageLoopGuard,
			guard: true,
		},
		{
			name:      "general agent within budget",
			self:      "solus",
			history:   alternating(roomGeneral)[:3],
			msg:       alternating(roomGeneral)[2],
			want:      true,
			stage:     StageOpen,
			relevance: true,
			guard:     true,
		},
		{
			name:    "general agent over budget",
			self:    "solus",
			history: alternating(roomGeneral),
			msg:     alternating(roomGeneral)[4],
			stage:   StageLoopGuard,
			guard:   true,
		},
		{
			name:      "general human skips guard",
			self:      "solus",
			msg:       humanMsg("h", roomGeneral, "u1", "yves", "hi", 1),
			want:      true,
			stage:     StageOpen,
			relevance: true,
		},
		{
			name:      "knowledge agent skips guard",
			self:      "solus",
			history:   alternating(roomKnowledge),
			msg:       alternating(roomKnowledge)[4],
			want:      true,
			stage:     StageOpen,
			relevance: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProtocol(tt.self, cfg, &fakeHistory{msgs: tt.history})
			v := p.Evaluate(context.Background(), tt.msg)
			if v.ShouldRespond != tt.want {
				t.Errorf("ShouldRespond = %v, want %v (%s)", v.ShouldRespond, tt.want, v.Reason)
			}
			if v.Stage != tt.stage {
				t.Errorf("Stage = %s, want %s", v.Stage, tt.stage)
			}
			if v.NeedsRelevance != tt.relevance {
				t.Errorf("NeedsRelevance = %v, want %v", v.NeedsRelevance, tt.relevance)
			}
			if (v.Guard != nil) != tt.guard {
				t.Errorf("Guard = %+v, want present=%v", v.Guard, tt.guard)
			}
			if v.Guidance == "" {
				t.Error("guidance should always be prepared")
			}
		})
	}
}

func TestNew_ZeroConfigUsesDefaults(t *testing.T) {
	p := New(testConfig(), identities["solus"], nil, nil, nil)
	g := p.LoopGuard()
	if g.MaxFor(RoomGeneral) != DefaultMaxExchanges || g.MaxFor(RoomStandup) != DefaultStandupMaxExchanges {
		t.Errorf("unexpected limits %d/%d", g.MaxFor(RoomGeneral), g.MaxFor(RoomStandup))
	}

	zero := testConfig()
	zero.MaxExchanges, zero.StandupMaxExchanges, zero.LookbackMessages, zero.HistoryTimeoutMS = 0, 0, 0, 0
	g = New(zero, identities["solus"], nil, nil, nil).LoopGuard()
	if g.MaxFor(RoomGeneral) != DefaultMaxExchanges || g.exchanges.lookback != DefaultLookbackMessages || g.exchanges.timeout != DefaultHistoryTimeout {
		t.Errorf("zero values not defaulted: %+v", g.exchanges)
	}
}

func TestNew_SelfNamesFromRoster(t *testing.T) {
	p := New(testConfig(), Identity{ID: "solus", DisplayName: "Solus"}, testRoster(), nil, nil)
	msg := agentMsg("k", "", "kelly", "Kelly", 1)
	msg.Content.ChannelName = "daily-standup"
	msg.Content.Text = "sol, your turn"
	if d := p.ClassifyAndArbitrate(context.Background(), msg); !d.ShouldRespond {
		t.Errorf("alias from roster not used: %+v", d)
	}
}

func TestEvaluate_StandupRound(t *testing.T) {
	const day = 24 * 60 * 60
	say := func(m Message, text string) Message {
		m.Content.Text = text
		return m
	}
	// Yesterday's round stays in the lookback window.
	history := []Message{
		say(agentMsg("y1", roomStandup, "kelly", "Kelly", -day), "Standup time.\n\n@VINCE, you're up."),
		say(agentMsg("y2", roomStandup, "vince", "VINCE", -day+60), "BTC funding flat."),
		say(agentMsg("y3", roomStandup, "kelly", "Kelly", -day+120), "Thanks VINCE. @Solus, you're up."),
		say(agentMsg("y4", roomStandup, "solus", "Solus", -day+180), "Selling 100k calls."),
		say(agentMsg("y5", roomStandup, "kelly", "Kelly", -day+240), "Thanks Solus. That's everyone."),
	}

	steps := []struct {
		msg      Message
		speaker  string
		silenced []string
	}{
		{say(agentMsg("k1", roomStandup, "kelly", "Kelly", 0), "Good morning team, standup time.\n\n@VINCE, you're up."), "vince", []string{"solus"}},
		{say(agentMsg("v1", roomStandup, "vince", "VINCE", 60), "BTC perps funding turned negative."), "kelly", []string{"solus"}},
		{say(agentMsg("k2", roomStandup, "kelly", "Kelly", 120), "Thanks VINCE. @Solus, you're up."), "solus", []string{"vince"}},
		{say(agentMsg("s1", roomStandup, "solus", "Solus", 180), "Rolling the covered calls."), "kelly", []string{"vince"}},
	}
	for _, st := range steps {
		history = append(history, st.msg)
		reader := &fakeHistory{msgs: append([]Message(nil), history...)}

		v := newTestProtocol(st.speaker, testConfig(), reader).Evaluate(context.Background(), st.msg)
		if !v.ShouldRespond {
			t.Errorf("%s: %s should take the turn (%s)", st.msg.ID, st.speaker, v.Reason)
		}
		for _, other := range st.silenced {
			if v := newTestProtocol(other, testConfig(), reader).Evaluate(context.Background(), st.msg); v.ShouldRespond {
				t.Errorf("%s: %s spoke out of turn (%s)", st.msg.ID, other, v.Reason)
			}
		}
	}
}

func TestEvaluate_StandupRepeatInsideRoundBlocked(t *testing.T) {
	history := []Message{
		agentMsg("k1", roomStandup, "kelly", "Kelly", 0),
		agentMsg("v1", roomStandup, "vince", "VINCE", 60),
		agentMsg("k2", roomStandup, "kelly", "Kelly", 120),
	}
	history[2].Content.Text = "VINCE, one more thing?"
	v := newTestProtocol("vince", testConfig(), &fakeHistory{msgs: history}).Evaluate(context.Background(), history[2])
	if v.ShouldRespond || v.Stage != StageLoopGuard {
		t.Errorf("second turn in the same round allowed: %+v", v)
	}
}
