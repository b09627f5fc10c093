package discord

import (
	"fmt"

	"github.com/nextlevelbuilder/crosstalk/internal/bus"
	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// Register creates a Discord channel for every hosted agent with Discord enabled and
// adds it to the manager. It returns the number of channels registered.
func Register(mgr *channels.Manager, agents []config.AgentSpec, msgBus *bus.MessageBus, stores *store.Stores, dir *channels.Directory) (int, error) {
	n := 0
	for _, agent := range agents {
		if !agent.Discord.Enabled {
			continue
		}
		ch, err := New(agent, msgBus, stores, dir)
		if err != nil {
			return n, fmt.Errorf("discord channel for %s: %w", agent.ID, err)
		}
		mgr.RegisterChannel(ch)
		n++
	}
	return n, nil
}
