package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/crosstalk/internal/agent"
	"github.com/nextlevelbuilder/crosstalk/internal/bus"
	"github.com/nextlevelbuilder/crosstalk/internal/channels"
	"github.com/nextlevelbuilder/crosstalk/internal/channels/discord"
	"github.com/nextlevelbuilder/crosstalk/internal/channels/telegram"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	httpapi "github.com/nextlevelbuilder/crosstalk/internal/http"
	"github.com/nextlevelbuilder/crosstalk/internal/standup"
	"github.com/nextlevelbuilder/crosstalk/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hosted agents, their chat channels and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents configured in %s", resolveConfigPath())
	}
	slog.Info("crosstalk starting", "version", Version, "agents", len(cfg.Agents), "config_hash", cfg.Hash())

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	stores, err := openStores(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()

	roster, protocols := buildProtocols(cfg, stores)
	dir := channels.NewDirectory(roster)

	msgBus := bus.New()
	for _, a := range cfg.Agents {
		msgBus.Register(a.ID)
	}

	channelMgr := channels.NewManager(msgBus, cfg.Gateway.OutboundRate, cfg.Gateway.OutboundBurst)
	nDiscord, err := discord.Register(channelMgr, cfg.Agents, msgBus, stores, dir)
	if err != nil {
		return err
	}
	nTelegram, err := telegram.Register(channelMgr, cfg.Agents, msgBus, stores, dir)
	if err != nil {
		return err
	}
	if nDiscord+nTelegram == 0 {
		slog.Warn("no chat channels enabled; only the HTTP API will answer")
	}

	round := standup.NewRound(cfg)
	facilitator, hostsFacilitator := standup.FacilitatorAgent(cfg)

	var sched *standup.Scheduler
	if cfg.Standup.Enabled {
		sched, err = standup.New(cfg, round, channelMgr)
		if err != nil {
			return fmt.Errorf("standup: %w", err)
		}
	}

	responders := make([]*agent.Responder, 0, len(protocols))
	for i, p := range protocols {
		rc := agent.ResponderConfig{
			Protocol:  p,
			Bus:       msgBus,
			Generator: generatorFor(cfg.Agents[i], cfg.LLM),
			History:   stores.Messages,
			Delay:     time.Duration(cfg.Gateway.ResponseDelayMS) * time.Millisecond,
		}
		if hostsFacilitator && cfg.Agents[i].ID == facilitator.ID {
			rc.Turns = round
		}
		responders = append(responders, agent.NewResponder(rc))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return channelMgr.Run(gctx) })
	for _, r := range responders {
		g.Go(func() error { return r.Run(gctx) })
	}
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}

	api := httpapi.NewServer(protocols, channelMgr.GetStatus, cfg.Gateway.Token)
	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	g.Go(func() error { return httpapi.Serve(gctx, addr, api.Router()) })

	slog.Info("crosstalk running", "channels", channelMgr.GetEnabledChannels(), "addr", addr)
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("crosstalk stopped")
	return nil
}

// generatorFor picks the agent's generator: its webhook, else the shared LLM
// endpoint, else silence.
func generatorFor(spec config.AgentSpec, llm config.LLMConfig) agent.Generator {
	if spec.GeneratorURL != "" {
		return agent.NewWebhookGenerator(spec.GeneratorURL)
	}
	if llm.APIKey != "" {
		model := llm.Model
		if spec.Model != "" {
			model = spec.Model
		}
		return agent.NewOpenAIGenerator(agent.OpenAIOptions{
			APIKey:      llm.APIKey,
			APIBase:     llm.APIBase,
			Model:       model,
			Persona:     spec.Persona,
			MaxTokens:   llm.MaxTokens,
			Temperature: llm.Temperature,
		})
	}
	slog.Warn("agent has no generator_url and no llm api key; decisions are logged but nothing is posted", "agent", spec.ID)
	return agent.NoopGenerator{}
}
