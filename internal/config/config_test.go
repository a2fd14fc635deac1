package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Test with example config file (should work for basic structure validation)
	configPath := filepath.Join("..", "..", "config.yaml.example")
	_, err := Load(configPath)
	if err != nil {
		t.Errorf("Expected config to load successfully from example file, got error: %v", err)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
telegram:
  token_file: "token.csv"
lists:
  allowed_users: "u.csv"
  large_groups: "l.csv"
  all_groups: "a.csv"
  monitored_groups: "m.csv"
no_such_section:
  key: value
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown config section, got nil")
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_OTC_TOKEN_FILE", "from_env.csv")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
telegram:
  token_file: "${TEST_OTC_TOKEN_FILE}"
lists:
  allowed_users: "u.csv"
  large_groups: "l.csv"
  all_groups: "a.csv"
  monitored_groups: "m.csv"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected config to load, got error: %v", err)
	}
	if cfg.Telegram.TokenFile != "from_env.csv" {
		t.Errorf("Expected token_file expanded to 'from_env.csv', got %q", cfg.Telegram.TokenFile)
	}
}

func baseConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			TokenFile:       "config/TGToken.csv",
			HeartbeatChatID: 123,
		},
		Lists: ListsConfig{
			AllowedUsers:    "config/Allowed_User.csv",
			LargeGroups:     "config/Group_List_Large.csv",
			AllGroups:       "config/Group_List_All.csv",
			MonitoredGroups: "config/Monitor_List.csv",
		},
		MarketData: MarketDataConfig{
			QuoteTimeout: "10s",
		},
		Monitor: MonitorConfig{
			GraceWindow:    "5m",
			ResponseWindow: "5m",
		},
		Notify: NotifyConfig{
			CallCooldown: "5m",
		},
		Dashboard: DashboardConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:9000",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config := baseConfig()
		if err := config.Validate(); err != nil {
			t.Errorf("Expected valid config, got error: %v", err)
		}
	})

	t.Run("missing token file", func(t *testing.T) {
		config := baseConfig()
		config.Telegram.TokenFile = ""
		err := config.Validate()
		if err == nil {
			t.Fatal("Expected error when telegram.token_file unset")
		}
		if !strings.Contains(err.Error(), "telegram.token_file is required") {
			t.Errorf("Unexpected error message: %v", err)
		}
	})

	t.Run("missing list path", func(t *testing.T) {
		config := baseConfig()
		config.Lists.MonitoredGroups = ""
		err := config.Validate()
		if err == nil {
			t.Fatal("Expected error when lists.monitored_groups unset")
		}
		if !strings.Contains(err.Error(), "lists.monitored_groups is required") {
			t.Errorf("Unexpected error message: %v", err)
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		config := baseConfig()
		config.Monitor.ResponseWindow = "five minutes"
		err := config.Validate()
		if err == nil {
			t.Fatal("Expected error for unparsable monitor.response_window")
		}
		if !strings.Contains(err.Error(), "monitor.response_window invalid") {
			t.Errorf("Unexpected error message: %v", err)
		}
	})

	t.Run("negative duration", func(t *testing.T) {
		config := baseConfig()
		config.Notify.CallCooldown = "-1m"
		if err := config.Validate(); err == nil {
			t.Error("Expected error for negative notify.call_cooldown")
		}
	})

	t.Run("dashboard enabled without addr", func(t *testing.T) {
		config := baseConfig()
		config.Dashboard.ListenAddr = ""
		err := config.Validate()
		if err == nil {
			t.Fatal("Expected error when dashboard enabled without listen_addr")
		}
		if !strings.Contains(err.Error(), "dashboard.listen_addr is required") {
			t.Errorf("Unexpected error message: %v", err)
		}
	})

	t.Run("dashboard disabled without addr is fine", func(t *testing.T) {
		config := baseConfig()
		config.Dashboard.Enabled = false
		config.Dashboard.ListenAddr = ""
		if err := config.Validate(); err != nil {
			t.Errorf("Expected valid config, got error: %v", err)
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		config := baseConfig()
		config.Logging.Level = "verbose"
		if err := config.Validate(); err == nil {
			t.Error("Expected error for unknown logging.level")
		}
	})
}

func TestDurationGetters(t *testing.T) {
	config := baseConfig()
	config.MarketData.QuoteTimeout = "3s"
	config.Monitor.GraceWindow = ""
	config.Monitor.ResponseWindow = "90s"
	config.Notify.CallCooldown = "garbage"

	if got := config.GetQuoteTimeout(); got != 3*time.Second {
		t.Errorf("GetQuoteTimeout() = %v, want 3s", got)
	}
	if got := config.GetGraceWindow(); got != 5*time.Minute {
		t.Errorf("GetGraceWindow() default = %v, want 5m", got)
	}
	if got := config.GetResponseWindow(); got != 90*time.Second {
		t.Errorf("GetResponseWindow() = %v, want 90s", got)
	}
	// Unparsable values fall back rather than crash the caller.
	if got := config.GetCallCooldown(); got != 5*time.Minute {
		t.Errorf("GetCallCooldown() fallback = %v, want 5m", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	config := baseConfig()
	config.Logging.Level = ""
	if got := config.GetLogLevel(); got != "info" {
		t.Errorf("GetLogLevel() default = %q, want info", got)
	}
	config.Logging.Level = "debug"
	if got := config.GetLogLevel(); got != "debug" {
		t.Errorf("GetLogLevel() = %q, want debug", got)
	}
}
