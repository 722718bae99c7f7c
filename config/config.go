package config

import (
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Backend
	BackendURL     string
	BackendWSURL   string
	BackendTimeout time.Duration

	// Circuit breaker in front of the backend
	BreakerMaxFailures int
	BreakerReset       time.Duration

	// Strategy store
	StoreDriver   string
	SQLitePath    string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Observability
	MetricsAddr string
	LogLevel    string

	// Backtest
	InitialBalance float64

	// Live watch
	NotifyEvents     []string // stream event types that raise an alert
	NotifyWebhookURL string
	TelegramBotToken string
	TelegramChatID   string
	EventHistory     int // events kept for /events
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numbers and durations fall back to the default with a warning;
// Validate reports values that are well-formed but unusable.
func Load() *Config {
	backendURL := getEnv("BACKEND_URL", "http://localhost:8000")
	return &Config{
		BackendURL:     backendURL,
		BackendWSURL:   getEnv("BACKEND_WS_URL", DeriveWSURL(backendURL)),
		BackendTimeout: getDuration("BACKEND_TIMEOUT", 30*time.Second),

		BreakerMaxFailures: getInt("BREAKER_MAX_FAILURES", 5),
		BreakerReset:       getDuration("BREAKER_RESET", 10*time.Second),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:    getEnv("SQLITE_PATH", "data/strategies.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		InitialBalance: getFloat("INITIAL_BALANCE", 10000),

		NotifyEvents:     getList("NOTIFY_EVENTS", "signal,trade_closed,error"),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		EventHistory:     getInt("EVENT_HISTORY", 200),
	}
}

// Validate reports the first unusable value.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("BACKEND_URL: %w", err)
	}
	if u, err := url.Parse(c.BackendWSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("BACKEND_WS_URL: want ws:// or wss:// URL, got %q", c.BackendWSURL)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %s", c.BackendTimeout)
	}
	if c.BreakerMaxFailures < 0 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must not be negative, got %d", c.BreakerMaxFailures)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER: unknown driver %q", c.StoreDriver)
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("INITIAL_BALANCE must be positive, got %v", c.InitialBalance)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if c.NotifyWebhookURL != "" {
		if _, err := url.ParseRequestURI(c.NotifyWebhookURL); err != nil {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL: %w", err)
		}
	}
	return nil
}

// SlogLevel returns the configured level, or Info if it does not parse.
func (c *Config) SlogLevel() slog.Level {
	lvl, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLogLevel accepts debug, info, warn/warning and error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: unknown level %q", s)
	}
}

// DeriveWSURL maps http(s)://host[/path] to ws(s)://host/ws.
func DeriveWSURL(httpURL string) string {
	u, err := url.Parse(httpURL)
	if err != nil || u.Host == "" {
		return "ws://localhost:8000/ws"
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + "/ws"
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getList splits a comma-separated value, dropping empty items.
func getList(key, fallback string) []string {
	var out []string
	for _, p := range strings.Split(getEnv(key, fallback), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
