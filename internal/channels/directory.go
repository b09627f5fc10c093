package channels

import (
	"strings"
	"sync"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
)

// Directory maps platform user ids to agent ids. Hosted bots register themselves when
// they connect; agents hosted elsewhere come from roster platform ids.
type Directory struct {
	roster *a2a.Roster

	mu        sync.RWMutex
	bots      map[string]string // platform + ":" + user id -> agent id
	usernames map[string]string // platform + ":" + lowercased username -> agent id
}

// NewDirectory creates a directory backed by roster (may be nil).
func NewDirectory(roster *a2a.Roster) *Directory {
	return &Directory{roster: roster, bots: make(map[string]string), usernames: make(map[string]string)}
}

// Register records that userID on platform is the bot account of agentID.
func (d *Directory) Register(platform, userID, agentID string) {
	if d == nil || userID == "" {
		return
	}
	d.mu.Lock()
	d.bots[platform+":"+userID] = agentID
	d.mu.Unlock()
}

// Resolve returns the agent id behind a platform user id.
func (d *Directory) Resolve(platform, userID string) (string, bool) {
	if d == nil || userID == "" {
		return "", false
	}
	d.mu.RLock()
	id, ok := d.bots[platform+":"+userID]
	d.mu.RUnlock()
	if ok {
		return id, true
	}
	if m, ok := d.roster.ByPlatformID(platform, userID); ok {
		return m.ID, true
	}
	return "", false
}

// RegisterUsername records the @handle of agentID's bot on platform.
func (d *Directory) RegisterUsername(platform, username, agentID string) {
	username = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if d == nil || username == "" {
		return
	}
	d.mu.Lock()
	d.usernames[platform+":"+username] = agentID
	d.mu.Unlock()
}

// ResolveUsername returns the agent behind an @handle: registered bot usernames first,
// then a roster member whose id, name or alias equals the handle.
func (d *Directory) ResolveUsername(platform, username string) (string, bool) {
	username = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if d == nil || username == "" {
		return "", false
	}
	d.mu.RLock()
	id, ok := d.usernames[platform+":"+username]
	d.mu.RUnlock()
	if ok {
		return id, true
	}
	for _, m := range d.roster.Members() {
		if strings.EqualFold(m.ID, username) {
			return m.ID, true
		}
		for _, n := range m.Names() {
			if n == username {
				return m.ID, true
			}
		}
	}
	return "", false
}

// DisplayName returns the roster display name of agentID, falling back to the id.
func (d *Directory) DisplayName(agentID string) string {
	if d != nil {
		if m, ok := d.roster.Get(agentID); ok && m.DisplayName != "" {
			return m.DisplayName
		}
	}
	return agentID
}
