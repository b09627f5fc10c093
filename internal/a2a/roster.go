package a2a

import (
	"strings"

	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

// Member is one recognized agent persona.
type Member struct {
	ID          string
	DisplayName string
	Aliases     []string
	PlatformIDs map[string]string // platform -> platform user id
}

// Names returns the display name followed by every alias, lowercased, empty entries skipped.
func (m Member) Names() []string {
	out := make([]string, 0, 1+len(m.Aliases))
	if n := strings.ToLower(strings.TrimSpace(m.DisplayName)); n != "" {
		out = append(out, n)
	}
	for _, a := range m.Aliases {
		if n := strings.ToLower(strings.TrimSpace(a)); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Roster is the static set of recognized agents. It is built once and never mutated.
type Roster struct {
	members []Member
	byID    map[string]int
}

// NewRoster builds a roster from config entries. Entries sharing an id are merged.
func NewRoster(entries []config.RosterEntry) *Roster {
	r := &Roster{byID: make(map[string]int)}
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		name := strings.TrimSpace(e.Name)
		if id == "" {
			id = strings.ToLower(name)
		}
		if id == "" {
			continue
		}
		if idx, ok := r.byID[id]; ok {
			m := &r.members[idx]
			if m.DisplayName == "" {
				m.DisplayName = name
			}
			m.Aliases = append(m.Aliases, e.Aliases...)
			for k, v := range e.PlatformIDs {
				if m.PlatformIDs == nil {
					m.PlatformIDs = make(map[string]string)
				}
				m.PlatformIDs[k] = v
			}
			continue
		}
		m := Member{ID: id, DisplayName: name, Aliases: append([]string(nil), e.Aliases...)}
		if len(e.PlatformIDs) > 0 {
			m.PlatformIDs = make(map[string]string, len(e.PlatformIDs))
			for k, v := range e.PlatformIDs {
				m.PlatformIDs[k] = v
			}
		}
		r.byID[id] = len(r.members)
		r.members = append(r.members, m)
	}
	return r
}

// Members returns a copy of the roster members.
func (r *Roster) Members() []Member {
	if r == nil {
		return nil
	}
	return append([]Member(nil), r.members...)
}

// Get returns the member with the given id.
func (r *Roster) Get(id string) (Member, bool) {
	if r == nil {
		return Member{}, false
	}
	idx, ok := r.byID[id]
	if !ok {
		return Member{}, false
	}
	return r.members[idx], true
}

// Match returns the first member whose display name or alias is contained in name,
// compared case-insensitively.
func (r *Roster) Match(name string) (Member, bool) {
	if r == nil {
		return Member{}, false
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return Member{}, false
	}
	for _, m := range r.members {
		for _, n := range m.Names() {
			if strings.Contains(lower, n) {
				return m, true
			}
		}
	}
	return Member{}, false
}

// ByPlatformID resolves a platform user id to a roster member.
func (r *Roster) ByPlatformID(platform, userID string) (Member, bool) {
	if r == nil || userID == "" {
		return Member{}, false
	}
	for _, m := range r.members {
		if m.PlatformIDs[platform] == userID {
			return m, true
		}
	}
	return Member{}, false
}

// nameMatches reports whether candidate contains any of names (already lowercased).
func nameMatches(candidate string, names []string) bool {
	lower := strings.ToLower(strings.TrimSpace(candidate))
	if lower == "" {
		return false
	}
	for _, n := range names {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
