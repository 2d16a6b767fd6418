package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the operator configuration read from config.yml. Everything here
// is optional; the zero value runs a working miner. User-facing mining
// settings live in settings.json instead.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Chat ChatConfig `yaml:"chat"`

	Notifications NotificationsConfig `yaml:"notifications"`
}

// ChatConfig enables IRC presence on the watched channel.
type ChatConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NotificationsConfig holds all notification provider configurations.
type NotificationsConfig struct {
	Telegram *TelegramConfig `yaml:"telegram,omitempty"`
	Discord  *DiscordConfig  `yaml:"discord,omitempty"`
	Webhook  *WebhookConfig  `yaml:"webhook,omitempty"`
}

// TelegramConfig holds Telegram notification settings.
type TelegramConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Token               string   `yaml:"token,omitempty"`
	ChatID              string   `yaml:"chat_id,omitempty"`
	Events              []string `yaml:"events"`
	DisableNotification bool     `yaml:"disable_notification"`
}

// DiscordConfig holds Discord notification settings.
type DiscordConfig struct {
	Enabled    bool     `yaml:"enabled"`
	WebhookURL string   `yaml:"webhook_url,omitempty"`
	Events     []string `yaml:"events"`
}

// WebhookConfig holds generic webhook notification settings.
type WebhookConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint,omitempty"`
	Method   string   `yaml:"method"`
	Events   []string `yaml:"events"`
}

// Load reads the operator config. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{LogLevel: "info"}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	applyEnvOverrides(cfg)
	return cfg, Validate(cfg)
}

// applyEnvOverrides overlays environment variables for secrets so tokens can
// stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if cfg.Notifications.Telegram != nil {
		if v := os.Getenv("TDM_TELEGRAM_TOKEN"); v != "" {
			cfg.Notifications.Telegram.Token = v
		}
		if v := os.Getenv("TDM_TELEGRAM_CHAT_ID"); v != "" {
			cfg.Notifications.Telegram.ChatID = v
		}
	}
	if cfg.Notifications.Discord != nil {
		if v := os.Getenv("TDM_DISCORD_WEBHOOK"); v != "" {
			cfg.Notifications.Discord.WebhookURL = v
		}
	}
	if cfg.Notifications.Webhook != nil {
		if v := os.Getenv("TDM_WEBHOOK_URL"); v != "" {
			cfg.Notifications.Webhook.Endpoint = v
		}
	}
}

// Validate checks the configuration for common errors.
func Validate(cfg *Config) error {
	if t := cfg.Notifications.Telegram; t != nil && t.Enabled {
		if t.Token == "" || t.ChatID == "" {
			return fmt.Errorf("telegram enabled but token or chat_id not set (use env vars TDM_TELEGRAM_TOKEN and TDM_TELEGRAM_CHAT_ID)")
		}
	}
	if d := cfg.Notifications.Discord; d != nil && d.Enabled {
		if d.WebhookURL == "" {
			return fmt.Errorf("discord enabled but webhook_url not set (use env var TDM_DISCORD_WEBHOOK)")
		}
	}
	if w := cfg.Notifications.Webhook; w != nil && w.Enabled {
		if w.Endpoint == "" {
			return fmt.Errorf("webhook enabled but endpoint not set (use env var TDM_WEBHOOK_URL)")
		}
	}
	return nil
}
