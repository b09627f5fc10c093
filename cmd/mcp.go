package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/crosstalk/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the turn-taking decisions as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Agents) == 0 {
				return fmt.Errorf("no agents configured in %s", resolveConfigPath())
			}

			stores, err := openStores(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer stores.Close()

			_, protocols := buildProtocols(cfg, stores)
			mcp.Version = Version
			return mcp.NewServer(protocols).Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}
