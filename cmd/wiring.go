package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	"github.com/nextlevelbuilder/crosstalk/internal/metrics"
	"github.com/nextlevelbuilder/crosstalk/internal/store"
	"github.com/nextlevelbuilder/crosstalk/internal/store/memory"
	"github.com/nextlevelbuilder/crosstalk/internal/store/pg"
	"github.com/nextlevelbuilder/crosstalk/internal/store/redis"
	"github.com/nextlevelbuilder/crosstalk/internal/store/sqlite"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStores opens the shared log backend selected by database.store.
func openStores(ctx context.Context, cfg config.DatabaseConfig) (*store.Stores, error) {
	switch cfg.Store {
	case "", "memory":
		slog.Info("store: in-memory log (not shared across processes)")
		return memory.New(), nil
	case "sqlite":
		path := config.ExpandHome(cfg.SQLitePath)
		slog.Info("store: sqlite", "path", path)
		return sqlite.NewSQLiteStores(ctx, path)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("CROSSTALK_POSTGRES_DSN environment variable is not set")
		}
		slog.Info("store: postgres")
		return pg.NewPGStores(cfg.PostgresDSN)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("CROSSTALK_REDIS_URL environment variable is not set")
		}
		slog.Info("store: redis")
		return redis.NewRedisStores(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown store %q (want memory, sqlite, postgres or redis)", cfg.Store)
	}
}

// buildProtocols creates one protocol per hosted agent. History reads go through the
// metrics wrapper so guard fail-opens show up as read errors.
func buildProtocols(cfg *config.Config, stores *store.Stores) (*a2a.Roster, []*a2a.Protocol) {
	roster := a2a.NewRoster(cfg.RosterEntries())
	history := metrics.InstrumentHistory(stores.Messages)

	protocols := make([]*a2a.Protocol, 0, len(cfg.Agents))
	for _, spec := range cfg.Agents {
		self := a2a.Identity{ID: spec.ID, DisplayName: spec.Name}
		protocols = append(protocols, a2a.New(cfg.A2A, self, roster, history, stores.Rooms))
	}
	return roster, protocols
}
