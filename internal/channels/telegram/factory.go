package telegram

import (
	"fmt"

	"github.com/nextlevelbuilder/crosstalk/internal/bus"
	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
)

// Register creates a Telegram channel for every hosted agent with Telegram enabled and
// adds it to the manager. It returns the number of channels registered.
func Register(mgr *channels.Manager, agents []config.AgentSpec, msgBus *bus.MessageBus, stores *store.Stores, dir *channels.Directory) (int, error) {
	n := 0
	for _, agent := range agents {
		if !agent.Telegram.Enabled {
			continue
		}
		ch, err := New(agent, msgBus, stores, dir)
		if err != nil {
			return n, fmt.Errorf("telegram channel for %s: %w", agent.ID, err)
		}
		mgr.RegisterChannel(ch)
		n++
	}
	return n, nil
}
