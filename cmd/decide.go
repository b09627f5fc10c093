package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
	"github.com/nextlevelbuilder/crosstalk/internal/store/memory"
)

func decideCmd() *cobra.Command {
	var (
		agentID     string
		messageFile string
		historyFile string
		roomName    string
	)
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Evaluate one message for a hosted agent and print the verdict as JSON",
		Long: `Evaluate one message for a hosted agent and print the verdict as JSON.

With --history the room log is taken from a JSON array of messages in an in-memory
store; otherwise the configured database is read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, ok := cfg.Agent(agentID); !ok {
				return fmt.Errorf("agent %q is not configured", agentID)
			}

			var msg a2a.Message
			if err := readJSONFile(messageFile, &msg); err != nil {
				return fmt.Errorf("read message: %w", err)
			}
			if msg.RoomID == "" {
				return fmt.Errorf("message has no room_id")
			}

			var stores *store.Stores
			if historyFile != "" {
				var history []a2a.Message
				if err := readJSONFile(historyFile, &history); err != nil {
					return fmt.Errorf("read history: %w", err)
				}
				stores = memory.New()
				for _, h := range history {
					if err := stores.Messages.Append(ctx, h); err != nil {
						return fmt.Errorf("seed history: %w", err)
					}
				}
			} else {
				stores, err = openStores(ctx, cfg.Database)
				if err != nil {
					return fmt.Errorf("open store: %w", err)
				}
				defer stores.Close()
			}

			if roomName != "" {
				if err := stores.Rooms.UpsertRoom(ctx, a2a.Room{ID: msg.RoomID, DisplayName: roomName}); err != nil {
					return fmt.Errorf("register room: %w", err)
				}
			}

			_, protocols := buildProtocols(cfg, stores)
			for _, p := range protocols {
				if p.Self().ID != agentID {
					continue
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(p.Evaluate(ctx, msg))
			}
			return fmt.Errorf("agent %q is not configured", agentID)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "hosted agent id deciding the turn")
	cmd.Flags().StringVar(&messageFile, "message", "", "JSON file with the inbound message")
	cmd.Flags().StringVar(&historyFile, "history", "", "JSON file with the room log (array of messages)")
	cmd.Flags().StringVar(&roomName, "room-name", "", "display name to register for the message's room")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
