package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		A2A: A2AConfig{
			MaxExchanges:          3,
			StandupMaxExchanges:   1,
			LookbackMessages:      10,
			StandupChannelNames:   FlexibleStringSlice{"standup", "daily-standup"},
			KnowledgeChannelNames: FlexibleStringSlice{"knowledge"},
			Facilitator:           "Kelly",
			HistoryTimeoutMS:      2000,
			StandupRoundMinutes:   60,
		},
		Database: DatabaseConfig{
			Store:      "memory",
			SQLitePath: "./data/crosstalk.db",
		},
		Gateway: GatewayConfig{
			Host:          "0.0.0.0",
			Port:          18791,
			OutboundRate:  1,
			OutboundBurst: 3,
		},
		LLM: LLMConfig{
			APIBase:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 512,
		},
		Standup: StandupConfig{
			Schedule: "0 9 * * *",
			Kickoff:  "Good morning team, standup time.",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst **bool) {
		if v := os.Getenv(key); v != "" {
			b := v == "true" || v == "1"
			*dst = &b
		}
	}
	envList := func(key string, dst *FlexibleStringSlice) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	// A2A protocol
	envBool("A2A_ENABLED", &c.A2A.Enabled)
	envInt("A2A_MAX_EXCHANGES", &c.A2A.MaxExchanges)
	envInt("A2A_STANDUP_MAX_EXCHANGES", &c.A2A.StandupMaxExchanges)
	envInt("A2A_LOOKBACK_MESSAGES", &c.A2A.LookbackMessages)
	envList("A2A_STANDUP_CHANNEL_NAMES", &c.A2A.StandupChannelNames)
	envList("A2A_KNOWLEDGE_CHANNEL_NAMES", &c.A2A.KnowledgeChannelNames)
	envStr("A2A_STANDUP_FACILITATOR", &c.A2A.Facilitator)
	envBool("A2A_STANDUP_SINGLE_RESPONDER", &c.A2A.StandupSingleResponder)
	envList("A2A_KNOWN_HUMANS", &c.A2A.KnownHumans)
	envList("A2A_KNOWN_AGENTS", &c.A2A.KnownAgents)
	envInt("A2A_HISTORY_TIMEOUT_MS", &c.A2A.HistoryTimeoutMS)
	envInt("A2A_STANDUP_ROUND_MINUTES", &c.A2A.StandupRoundMinutes)

	// Database
	envStr("CROSSTALK_STORE", &c.Database.Store)
	envStr("CROSSTALK_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("CROSSTALK_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("CROSSTALK_REDIS_URL", &c.Database.RedisURL)

	// Gateway host/port
	envStr("CROSSTALK_HOST", &c.Gateway.Host)
	if v := os.Getenv("CROSSTALK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envStr("CROSSTALK_GATEWAY_TOKEN", &c.Gateway.Token)

	// LLM generator
	envStr("CROSSTALK_LLM_API_KEY", &c.LLM.APIKey)
	envStr("CROSSTALK_LLM_API_BASE", &c.LLM.APIBase)
	envStr("CROSSTALK_LLM_MODEL", &c.LLM.Model)

	// Standup
	envStr("CROSSTALK_STANDUP_SCHEDULE", &c.Standup.Schedule)
	envStr("CROSSTALK_STANDUP_CHANNEL", &c.Standup.Channel)
	envStr("CROSSTALK_STANDUP_CHAT_ID", &c.Standup.ChatID)
	envList("CROSSTALK_STANDUP_ORDER", &c.Standup.Order)
	if v := os.Getenv("CROSSTALK_STANDUP_ENABLED"); v != "" {
		c.Standup.Enabled = v == "true" || v == "1"
	}

	// Telemetry
	envStr("CROSSTALK_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CROSSTALK_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CROSSTALK_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CROSSTALK_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CROSSTALK_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Per-agent bot tokens; a token auto-enables its channel.
	for i := range c.Agents {
		a := &c.Agents[i]
		envStr(TokenEnvKey("DISCORD", a.ID), &a.Discord.Token)
		envStr(TokenEnvKey("TELEGRAM", a.ID), &a.Telegram.Token)
		if a.Discord.Token != "" {
			a.Discord.Enabled = true
		}
		if a.Telegram.Token != "" {
			a.Telegram.Enabled = true
		}
	}
}

// TokenEnvKey returns the env var holding an agent's bot token,
// e.g. TokenEnvKey("DISCORD", "solus") = "CROSSTALK_DISCORD_TOKEN_SOLUS".
func TokenEnvKey(platform, agentID string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(agentID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return "CROSSTALK_" + platform + "_TOKEN_" + b.String()
}

// Hash returns a short fingerprint of the non-secret configuration.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(data))[:12]
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
