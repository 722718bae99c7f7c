package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"BACKEND_URL", "BACKEND_WS_URL", "BACKEND_TIMEOUT", "BREAKER_MAX_FAILURES", "BREAKER_RESET",
		"STORE_DRIVER", "SQLITE_PATH", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"METRICS_ADDR", "LOG_LEVEL", "INITIAL_BALANCE",
		"NOTIFY_EVENTS", "NOTIFY_WEBHOOK_URL", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "EVENT_HISTORY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	c := Load()
	if c.BackendURL != "http://localhost:8000" || c.BackendWSURL != "ws://localhost:8000/ws" {
		t.Errorf("backend: %q %q", c.BackendURL, c.BackendWSURL)
	}
	if c.StoreDriver != DriverSQLite || c.InitialBalance != 10000 || c.BackendTimeout != 30*time.Second {
		t.Errorf("defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND_URL", "https://api.example.com")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("BACKEND_TIMEOUT", "5s")
	t.Setenv("INITIAL_BALANCE", "2500.5")

	c := Load()
	if c.BackendWSURL != "wss://api.example.com/ws" {
		t.Errorf("derived ws url: %q", c.BackendWSURL)
	}
	if c.StoreDriver != DriverRedis || c.RedisDB != 3 || c.BackendTimeout != 5*time.Second || c.InitialBalance != 2500.5 {
		t.Errorf("overrides: %+v", c)
	}
}

func TestLoad_NotifyEvents(t *testing.T) {
	clearEnv(t)
	if got := Load().NotifyEvents; strings.Join(got, "|") != "signal|trade_closed|error" {
		t.Errorf("default notify events %v", got)
	}
	t.Setenv("NOTIFY_EVENTS", " trade_update, ,signal ")
	if got := Load().NotifyEvents; strings.Join(got, "|") != "trade_update|signal" {
		t.Errorf("notify events %v", got)
	}
}

func TestLoad_MalformedFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("BREAKER_MAX_FAILURES", "many")
	t.Setenv("BREAKER_RESET", "soon")
	c := Load()
	if c.BreakerMaxFailures != 5 || c.BreakerReset != 10*time.Second {
		t.Errorf("fallbacks: %d %s", c.BreakerMaxFailures, c.BreakerReset)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"STORE_DRIVER":    func(c *Config) { c.StoreDriver = "mongo" },
		"DATABASE_URL":    func(c *Config) { c.StoreDriver = DriverPostgres; c.DatabaseURL = "" },
		"BACKEND_WS_URL":  func(c *Config) { c.BackendWSURL = "http://x/ws" },
		"INITIAL_BALANCE": func(c *Config) { c.InitialBalance = 0 },
		"LOG_LEVEL":       func(c *Config) { c.LogLevel = "loud" },
		"BACKEND_TIMEOUT": func(c *Config) { c.BackendTimeout = 0 },
		"TELEGRAM":        func(c *Config) { c.TelegramBotToken = "t" },
	}
	clearEnv(t)
	for name, mutate := range cases {
		c := Load()
		mutate(c)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), name) {
			t.Errorf("%s: expected error naming it, got %v", name, err)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "": slog.LevelInfo,
		"warning": slog.LevelWarn, "error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
