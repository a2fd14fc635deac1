// Package config provides configuration management for the OTC bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when optional settings are unset.
const (
	// defaultQuoteTimeout bounds a single ticker request round trip.
	defaultQuoteTimeout = 10 * time.Second
	// defaultGraceWindow is how long after an admin reply customer
	// messages count as handled.
	defaultGraceWindow = 5 * time.Minute
	// defaultResponseWindow is how long a customer message may sit
	// unanswered before an alert fires.
	defaultResponseWindow = 5 * time.Minute
	// defaultCallCooldown throttles repeat voice calls to one number.
	defaultCallCooldown = 5 * time.Minute
)

// Config represents the complete application configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Lists      ListsConfig      `yaml:"lists"`
	MarketData MarketDataConfig `yaml:"marketdata"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Notify     NotifyConfig     `yaml:"notify"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// TelegramConfig defines Telegram transport settings.
type TelegramConfig struct {
	// TokenFile is a one-cell CSV holding the bot token. Kept out of the
	// YAML so the config file can be committed.
	TokenFile string `yaml:"token_file"`
	// HeartbeatChatID receives the hourly liveness message. Zero disables
	// the heartbeat.
	HeartbeatChatID int64 `yaml:"heartbeat_chat_id"`
	// Debug enables tgbotapi wire logging.
	Debug bool `yaml:"debug"`
}

// ListsConfig points at the operator-maintained CSV ID lists.
type ListsConfig struct {
	AllowedUsers    string `yaml:"allowed_users"`
	LargeGroups     string `yaml:"large_groups"`
	AllGroups       string `yaml:"all_groups"`
	MonitoredGroups string `yaml:"monitored_groups"`
}

// MarketDataConfig defines the quote source.
type MarketDataConfig struct {
	// BaseURL overrides the public Deribit API root. Empty uses the
	// production endpoint.
	BaseURL string `yaml:"base_url"`
	// QuoteTimeout bounds one ticker request, e.g. "10s".
	QuoteTimeout string `yaml:"quote_timeout"`
}

// MonitorConfig defines the unanswered-message windows.
type MonitorConfig struct {
	// GraceWindow: customer messages within this long of the last admin
	// message are considered handled, e.g. "5m".
	GraceWindow string `yaml:"grace_window"`
	// ResponseWindow: how long a customer message may wait for an admin
	// reply before escalation, e.g. "5m".
	ResponseWindow string `yaml:"response_window"`
}

// NotifyConfig defines the escalation channels.
type NotifyConfig struct {
	// LarkWebhookURL is the group-bot webhook. Empty or a YOUR_...
	// placeholder disables the Lark channel.
	LarkWebhookURL string `yaml:"lark_webhook_url"`
	// TwilioCredsFile is a 3-row CSV: account SID, auth token, from number.
	TwilioCredsFile string `yaml:"twilio_creds_file"`
	// CallListFile is a headerless CSV of E.164 numbers to call.
	CallListFile string `yaml:"call_list_file"`
	// CallCooldown is the minimum spacing between calls to one number.
	CallCooldown string `yaml:"call_cooldown"`
}

// DashboardConfig defines the local status server.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	// AuthToken, when set, is required via X-Auth-Token on /api routes.
	AuthToken string `yaml:"auth_token"`
}

// LoggingConfig defines log level and the rotating file sink.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	// Dir receives JSON-line log files, rotated daily-ish by size. Empty
	// logs to stdout only.
	Dir string `yaml:"dir"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Telegram validation
	if c.Telegram.TokenFile == "" {
		return fmt.Errorf("telegram.token_file is required")
	}

	// Lists validation
	if c.Lists.AllowedUsers == "" {
		return fmt.Errorf("lists.allowed_users is required")
	}
	if c.Lists.LargeGroups == "" {
		return fmt.Errorf("lists.large_groups is required")
	}
	if c.Lists.AllGroups == "" {
		return fmt.Errorf("lists.all_groups is required")
	}
	if c.Lists.MonitoredGroups == "" {
		return fmt.Errorf("lists.monitored_groups is required")
	}

	// Duration fields: empty falls back to a default, anything else must parse.
	if err := validDuration(c.MarketData.QuoteTimeout); err != nil {
		return fmt.Errorf("marketdata.quote_timeout invalid: %w", err)
	}
	if err := validDuration(c.Monitor.GraceWindow); err != nil {
		return fmt.Errorf("monitor.grace_window invalid: %w", err)
	}
	if err := validDuration(c.Monitor.ResponseWindow); err != nil {
		return fmt.Errorf("monitor.response_window invalid: %w", err)
	}
	if err := validDuration(c.Notify.CallCooldown); err != nil {
		return fmt.Errorf("notify.call_cooldown invalid: %w", err)
	}

	// Dashboard validation
	if c.Dashboard.Enabled && c.Dashboard.ListenAddr == "" {
		return fmt.Errorf("dashboard.listen_addr is required when dashboard.enabled")
	}

	// Logging validation
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}

	return nil
}

func validDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be > 0")
	}
	return nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetQuoteTimeout returns the configured per-quote timeout.
func (c *Config) GetQuoteTimeout() time.Duration {
	return durationOr(c.MarketData.QuoteTimeout, defaultQuoteTimeout)
}

// GetGraceWindow returns the configured admin grace window.
func (c *Config) GetGraceWindow() time.Duration {
	return durationOr(c.Monitor.GraceWindow, defaultGraceWindow)
}

// GetResponseWindow returns the configured unanswered-message window.
func (c *Config) GetResponseWindow() time.Duration {
	return durationOr(c.Monitor.ResponseWindow, defaultResponseWindow)
}

// GetCallCooldown returns the configured per-number call cooldown.
func (c *Config) GetCallCooldown() time.Duration {
	return durationOr(c.Notify.CallCooldown, defaultCallCooldown)
}

// GetLogLevel returns the configured level, defaulting to info.
func (c *Config) GetLogLevel() string {
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}
