package standup

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

// kickoffRequests are human phrases that ask the facilitator to open the standup.
var kickoffRequests = []string{
	"start standup",
	"kick off standup",
	"kickoff standup",
	"begin standup",
	"let's do standup",
	"standup time",
}

// wrapUpGuidance is added to the facilitator's context once every report is in.
const wrapUpGuidance = "## Standup Wrap-up\n\nEvery report is in. Summarize the round in a short day report: " +
	"the key point from each reporter, then the actions agreed with an owner for each."

// Round drives one standup: the kickoff calls the first reporter and each report is
// answered with a hand-off to the next one.
type Round struct {
	opening string
	order   []a2a.Member
}

// NewRound resolves the report order against the roster. Without a configured order,
// every roster member except the facilitator reports, in roster order.
func NewRound(cfg *config.Config) *Round {
	roster := a2a.NewRoster(cfg.RosterEntries())
	r := &Round{opening: strings.TrimSpace(cfg.Standup.Kickoff)}

	if len(cfg.Standup.Order) == 0 {
		fac := strings.ToLower(strings.TrimSpace(cfg.A2A.Facilitator))
		for _, m := range roster.Members() {
			if !hasName(m, fac) {
				r.order = append(r.order, m)
			}
		}
		return r
	}
	for _, name := range cfg.Standup.Order {
		m, ok := lookup(roster, name)
		if !ok {
			slog.Warn("standup: reporter not in roster, skipped", "name", name)
			continue
		}
		r.order = append(r.order, m)
	}
	return r
}

// Order returns the display names of the reporters in turn order.
func (r *Round) Order() []string {
	out := make([]string, len(r.order))
	for i, m := range r.order {
		out[i] = m.DisplayName
	}
	return out
}

// Kickoff returns the opening post, ending with a call to the first reporter.
func (r *Round) Kickoff() string {
	if len(r.order) == 0 {
		return r.opening
	}
	call := fmt.Sprintf("@%s, you're up.", r.order[0].DisplayName)
	if r.opening == "" {
		return call
	}
	return r.opening + "\n\n" + call
}

// Handoff returns the facilitator's scripted post for msg. A human asking for the
// standup gets the kickoff; a report gets a hand-off to the next reporter, and the last
// report gets a closing line with wrapUp set so the caller can add a summary.
// ok is false when the message is not part of the round.
func (r *Round) Handoff(msg a2a.Message, v a2a.Verdict) (text string, wrapUp bool, ok bool) {
	if v.RoomClass != a2a.RoomStandup || len(r.order) == 0 {
		return "", false, false
	}
	if v.SenderClass == a2a.SenderHuman {
		if isKickoffRequest(msg.Content.Text) {
			return r.Kickoff(), false, true
		}
		return "", false, false
	}

	idx := r.position(msg)
	if idx < 0 {
		return "", false, false
	}
	done := r.order[idx].DisplayName
	if idx == len(r.order)-1 {
		return fmt.Sprintf("Thanks %s. That's everyone.", done), true, true
	}
	return fmt.Sprintf("Thanks %s. @%s, you're up.", done, r.order[idx+1].DisplayName), false, true
}

// WrapUpGuidance returns the context added to the closing summary.
func (r *Round) WrapUpGuidance() string { return wrapUpGuidance }

// position returns the reporter index of the message author, or -1.
func (r *Round) position(msg a2a.Message) int {
	name := strings.ToLower(strings.TrimSpace(msg.Content.SenderDisplayName))
	for i, m := range r.order {
		if (msg.AgentID != "" && msg.AgentID == m.ID) || msg.SenderEntityID == m.ID {
			return i
		}
		if name != "" && hasName(m, name) {
			return i
		}
	}
	return -1
}

func lookup(roster *a2a.Roster, name string) (a2a.Member, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return a2a.Member{}, false
	}
	if m, ok := roster.Get(name); ok {
		return m, true
	}
	for _, m := range roster.Members() {
		if hasName(m, want) {
			return m, true
		}
	}
	return a2a.Member{}, false
}

// hasName reports whether want (lowercased) is the member's id, name or an alias.
func hasName(m a2a.Member, want string) bool {
	if want == "" {
		return false
	}
	if strings.EqualFold(m.ID, want) {
		return true
	}
	for _, n := range m.Names() {
		if n == want {
			return true
		}
	}
	return false
}

func isKickoffRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range kickoffRequests {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
