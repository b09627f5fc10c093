package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FlexibleStringSlice accepts ["str"], [123] and "a,b" in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = splitList(s)
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// splitList splits a comma-separated list, trimming blanks.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Config is the root configuration for crosstalk.
type Config struct {
	Agents    []AgentSpec     `json:"agents"`
	A2A       A2AConfig       `json:"a2a"`
	Database  DatabaseConfig  `json:"database"`
	Gateway   GatewayConfig   `json:"gateway"`
	LLM       LLMConfig       `json:"llm,omitempty"`
	Standup   StandupConfig   `json:"standup,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// AgentSpec describes one hosted agent persona.
type AgentSpec struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Aliases      FlexibleStringSlice `json:"aliases,omitempty"`
	GeneratorURL string              `json:"generator_url,omitempty"` // takes precedence over llm
	Persona      string              `json:"persona,omitempty"`       // system prompt for the llm generator
	Model        string              `json:"model,omitempty"`         // overrides llm.model
	Discord      DiscordConfig       `json:"discord,omitempty"`
	Telegram     TelegramConfig      `json:"telegram,omitempty"`
}

// A2AConfig configures agent-to-agent turn-taking and loop prevention.
// Zero numeric values mean "use default".
type A2AConfig struct {
	Enabled                *bool               `json:"enabled,omitempty"`                  // default true (nil = enabled)
	MaxExchanges           int                 `json:"max_exchanges,omitempty"`            // general rooms (default 3)
	StandupMaxExchanges    int                 `json:"standup_max_exchanges,omitempty"`    // standup rooms (default 1)
	LookbackMessages       int                 `json:"lookback_messages,omitempty"`        // history window (default 10)
	StandupChannelNames    FlexibleStringSlice `json:"standup_channel_names,omitempty"`    // substrings
	KnowledgeChannelNames  FlexibleStringSlice `json:"knowledge_channel_names,omitempty"`  // substrings
	Facilitator            string              `json:"facilitator,omitempty"`              // display name (default "Kelly")
	StandupSingleResponder *bool               `json:"standup_single_responder,omitempty"` // default true
	KnownHumans            FlexibleStringSlice `json:"known_humans,omitempty"`
	KnownAgents            FlexibleStringSlice `json:"known_agents,omitempty"` // extra roster names
	Roster                 []RosterEntry       `json:"roster,omitempty"`
	HistoryTimeoutMS       int                 `json:"history_timeout_ms,omitempty"`    // default 2000
	StandupRoundMinutes    int                 `json:"standup_round_minutes,omitempty"` // standup exchanges older than this are not counted (default 60)
}

// GuardEnabled reports whether the loop guard is on.
func (c A2AConfig) GuardEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SingleResponder reports whether non-facilitators are told to ignore humans in standups.
func (c A2AConfig) SingleResponder() bool {
	return c.StandupSingleResponder == nil || *c.StandupSingleResponder
}

// HistoryTimeout returns the history read deadline.
func (c A2AConfig) HistoryTimeout() time.Duration {
	return time.Duration(c.HistoryTimeoutMS) * time.Millisecond
}

// RosterEntry is a recognized agent that may not be hosted by this process.
type RosterEntry struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name"`
	Aliases     FlexibleStringSlice `json:"aliases,omitempty"`
	PlatformIDs map[string]string   `json:"platform_ids,omitempty"` // "discord" -> user id
}

// DatabaseConfig selects the shared message log backend.
// DSNs are secrets and read from env only.
type DatabaseConfig struct {
	Store       string `json:"store,omitempty"`       // "memory" (default), "sqlite", "postgres", "redis"
	SQLitePath  string `json:"sqlite_path,omitempty"` // default "./data/crosstalk.db"
	PostgresDSN string `json:"-"`                     // from env CROSSTALK_POSTGRES_DSN only
	RedisURL    string `json:"-"`                     // from env CROSSTALK_REDIS_URL only
}

// GatewayConfig controls the HTTP API and outbound pacing.
type GatewayConfig struct {
	Host            string  `json:"host,omitempty"`
	Port            int     `json:"port,omitempty"`
	Token           string  `json:"-"`                           // bearer token for /v1 routes, env CROSSTALK_GATEWAY_TOKEN
	OutboundRate    float64 `json:"outbound_rate,omitempty"`     // sends per second per channel (default 1)
	OutboundBurst   int     `json:"outbound_burst,omitempty"`    // default 3
	ResponseDelayMS int     `json:"response_delay_ms,omitempty"` // pause before generating, lets the log settle
}

// LLMConfig configures the OpenAI-compatible chat completions generator used by agents
// without a generator_url. Without an API key those agents stay silent.
type LLMConfig struct {
	APIBase     string  `json:"api_base,omitempty"` // default "https://api.openai.com/v1"
	APIKey      string  `json:"-"`                  // from env CROSSTALK_LLM_API_KEY only
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// StandupConfig schedules the facilitator's kickoff post and the report order.
type StandupConfig struct {
	Enabled  bool                `json:"enabled,omitempty"`
	Schedule string              `json:"schedule,omitempty"` // cron expression, UTC (default "0 9 * * *")
	Channel  string              `json:"channel,omitempty"`  // "discord" or "telegram"
	ChatID   string              `json:"chat_id,omitempty"`
	Kickoff  string              `json:"kickoff,omitempty"` // opening line; the first reporter is called after it
	Order    FlexibleStringSlice `json:"order,omitempty"`   // report order by agent name; default roster order without the facilitator
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection for local collectors
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "crosstalk")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens)
}

// Agent returns the hosted agent with the given id.
func (c *Config) Agent(id string) (AgentSpec, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentSpec{}, false
}

// RosterEntries merges hosted agents, configured roster entries and known agent names.
func (c *Config) RosterEntries() []RosterEntry {
	out := make([]RosterEntry, 0, len(c.Agents)+len(c.A2A.Roster)+len(c.A2A.KnownAgents))
	for _, a := range c.Agents {
		out = append(out, RosterEntry{ID: a.ID, Name: a.Name, Aliases: a.Aliases})
	}
	out = append(out, c.A2A.Roster...)
	for _, n := range c.A2A.KnownAgents {
		out = append(out, RosterEntry{Name: n})
	}
	return out
}
