package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/crosstalk/internal/agent"
	"github.com/nextlevelbuilder/crosstalk/internal/config"
	"github.com/nextlevelbuilder/crosstalk/internal/store/memory"
)

func TestOpenStores(t *testing.T) {
	ctx := context.Background()

	s, err := openStores(ctx, config.DatabaseConfig{Store: "memory"})
	if err != nil || s.Messages == nil || s.Rooms == nil {
		t.Fatalf("memory: %v", err)
	}

	s, err = openStores(ctx, config.DatabaseConfig{Store: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "log.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("close sqlite: %v", err)
	}

	for _, bad := range []config.DatabaseConfig{
		{Store: "postgres"},
		{Store: "redis"},
		{Store: "mongo"},
	} {
		if _, err := openStores(ctx, bad); err == nil {
			t.Errorf("openStores(%+v) should fail", bad)
		}
	}
}

func TestBuildProtocols(t *testing.T) {
	cfg := config.Default()
	cfg.Agents = []config.AgentSpec{{ID: "solus", Name: "Solus"}, {ID: "vince", Name: "Vince"}}
	cfg.A2A.KnownAgents = config.FlexibleStringSlice{"Kelly"}

	roster, protocols := buildProtocols(cfg, memory.New())
	if len(protocols) != 2 || protocols[0].Self().ID != "solus" || protocols[1].Self().DisplayName != "Vince" {
		t.Fatalf("protocols = %v", protocols)
	}
	if _, ok := roster.Match("kelly"); !ok {
		t.Error("known agents should join the roster")
	}
}

func TestGeneratorFor(t *testing.T) {
	tests := []struct {
		name string
		spec config.AgentSpec
		llm  config.LLMConfig
		want string
	}{
		{"webhook wins", config.AgentSpec{ID: "a", GeneratorURL: "http://gen"}, config.LLMConfig{APIKey: "k"}, "webhook"},
		{"llm", config.AgentSpec{ID: "a"}, config.LLMConfig{APIKey: "k"}, "openai"},
		{"none", config.AgentSpec{ID: "a"}, config.LLMConfig{}, "noop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			switch generatorFor(tt.spec, tt.llm).(type) {
			case *agent.WebhookGenerator:
				got = "webhook"
			case *agent.OpenAIGenerator:
				got = "openai"
			case agent.NoopGenerator:
				got = "noop"
			}
			if got != tt.want {
				t.Errorf("generatorFor = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunServe_InvalidStandupFailsBeforeStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		agents: [{id: "kelly", name: "Kelly"}],
		standup: {enabled: true, schedule: "every morning", channel: "discord", chat_id: "c1"},
		gateway: {port: 1},
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CROSSTALK_CONFIG", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := runServe(ctx)
	if err == nil || !strings.Contains(err.Error(), "standup") {
		t.Fatalf("runServe = %v, want standup error", err)
	}
	if ctx.Err() != nil {
		t.Error("runServe should fail without waiting on running components")
	}
}
