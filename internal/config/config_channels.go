package config

// TelegramConfig is a per-agent Telegram bot. Token comes from env only.
type TelegramConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"-"` // env CROSSTALK_TELEGRAM_TOKEN_<AGENT>
	Proxy     string              `json:"proxy,omitempty"`
	AllowFrom FlexibleStringSlice `json:"allow_from,omitempty"`
}

// DiscordConfig is a per-agent Discord bot. Token comes from env only.
type DiscordConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"-"` // env CROSSTALK_DISCORD_TOKEN_<AGENT>
	AllowFrom FlexibleStringSlice `json:"allow_from,omitempty"`
}
