package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a := cfg.A2A
	if !a.GuardEnabled() {
		t.Error("guard should default to enabled")
	}
	if !a.SingleResponder() {
		t.Error("single responder should default to on")
	}
	if a.MaxExchanges != 3 || a.StandupMaxExchanges != 1 || a.LookbackMessages != 10 || a.StandupRoundMinutes != 60 {
		t.Errorf("unexpected limits: %+v", a)
	}
	if !reflect.DeepEqual([]string(a.StandupChannelNames), []string{"standup", "daily-standup"}) {
		t.Errorf("standup names = %v", a.StandupChannelNames)
	}
	if a.Facilitator != "Kelly" {
		t.Errorf("facilitator = %q", a.Facilitator)
	}
	if a.HistoryTimeout() != 2*time.Second {
		t.Errorf("history timeout = %v", a.HistoryTimeout())
	}
	if cfg.Database.Store != "memory" || cfg.Gateway.Port != 18791 {
		t.Errorf("unexpected store/port: %q %d", cfg.Database.Store, cfg.Gateway.Port)
	}
}

func TestLoad_JSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		// comments are allowed
		agents: [
			{id: "solus", name: "Solus", aliases: ["sol"]},
			{id: "kelly", name: "Kelly"},
		],
		a2a: {
			enabled: false,
			max_exchanges: 5,
			standup_channel_names: "meeting, sync",
			roster: [{name: "Vince", platform_ids: {discord: "42"}}],
		},
		database: {store: "sqlite"},
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.A2A.GuardEnabled() {
		t.Error("guard should be disabled by file")
	}
	if cfg.A2A.MaxExchanges != 5 {
		t.Errorf("max exchanges = %d", cfg.A2A.MaxExchanges)
	}
	if cfg.A2A.StandupMaxExchanges != 1 {
		t.Errorf("standup max should keep default, got %d", cfg.A2A.StandupMaxExchanges)
	}
	if !reflect.DeepEqual([]string(cfg.A2A.StandupChannelNames), []string{"meeting", "sync"}) {
		t.Errorf("standup names = %v", cfg.A2A.StandupChannelNames)
	}
	if cfg.Database.Store != "sqlite" {
		t.Errorf("store = %q", cfg.Database.Store)
	}
	entries := cfg.RosterEntries()
	if len(entries) != 3 {
		t.Fatalf("roster entries = %d, want 3", len(entries))
	}
	if entries[2].PlatformIDs["discord"] != "42" {
		t.Errorf("platform ids = %v", entries[2].PlatformIDs)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{agents: [{id: "solus-bot", name: "Solus"}], a2a: {max_exchanges: 5}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("A2A_ENABLED", "false")
	t.Setenv("A2A_MAX_EXCHANGES", "2")
	t.Setenv("A2A_KNOWN_HUMANS", "yves, ikigai")
	t.Setenv("A2A_STANDUP_SINGLE_RESPONDER", "0")
	t.Setenv("CROSSTALK_PORT", "9000")
	t.Setenv("CROSSTALK_DISCORD_TOKEN_SOLUS_BOT", "tok")
	t.Setenv("CROSSTALK_GATEWAY_TOKEN", "api-secret")
	t.Setenv("CROSSTALK_LLM_API_KEY", "sk-env")
	t.Setenv("CROSSTALK_LLM_MODEL", "llama-3")
	t.Setenv("CROSSTALK_STANDUP_ORDER", "VINCE, Solus")
	t.Setenv("A2A_STANDUP_ROUND_MINUTES", "90")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.A2A.GuardEnabled() {
		t.Error("A2A_ENABLED=false not applied")
	}
	if cfg.A2A.MaxExchanges != 2 {
		t.Errorf("env should win over file, got %d", cfg.A2A.MaxExchanges)
	}
	if !reflect.DeepEqual([]string(cfg.A2A.KnownHumans), []string{"yves", "ikigai"}) {
		t.Errorf("known humans = %v", cfg.A2A.KnownHumans)
	}
	if cfg.A2A.SingleResponder() {
		t.Error("single responder should be off")
	}
	if cfg.Gateway.Port != 9000 {
		t.Errorf("port = %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.Token != "api-secret" {
		t.Errorf("gateway token = %q", cfg.Gateway.Token)
	}
	if cfg.LLM.APIKey != "sk-env" || cfg.LLM.Model != "llama-3" || cfg.LLM.APIBase != "https://api.openai.com/v1" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if !reflect.DeepEqual([]string(cfg.Standup.Order), []string{"VINCE", "Solus"}) || cfg.A2A.StandupRoundMinutes != 90 {
		t.Errorf("standup order = %v, round = %d", cfg.Standup.Order, cfg.A2A.StandupRoundMinutes)
	}
	a, ok := cfg.Agent("solus-bot")
	if !ok {
		t.Fatal("agent not found")
	}
	if a.Discord.Token != "tok" || !a.Discord.Enabled {
		t.Errorf("discord = %+v", a.Discord)
	}
}

func TestTokenEnvKey(t *testing.T) {
	tests := []struct {
		platform, id, want string
	}{
		{"DISCORD", "solus", "CROSSTALK_DISCORD_TOKEN_SOLUS"},
		{"TELEGRAM", "vince-2", "CROSSTALK_TELEGRAM_TOKEN_VINCE_2"},
	}
	for _, tt := range tests {
		if got := TokenEnvKey(tt.platform, tt.id); got != tt.want {
			t.Errorf("TokenEnvKey(%q, %q) = %q, want %q", tt.platform, tt.id, got, tt.want)
		}
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"strings", `["a","b"]`, []string{"a", "b"}},
		{"numbers", `[123, 456]`, []string{"123", "456"}},
		{"comma string", `"a, b,,c"`, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexibleStringSlice
			if err := f.UnmarshalJSON([]byte(tt.in)); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual([]string(f), tt.want) {
				t.Errorf("got %v, want %v", f, tt.want)
			}
		})
	}
}
