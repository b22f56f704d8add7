// Package config defines the top-level configuration for the risk monitor
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RISKMON_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Session  SessionConfig  `toml:"session"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds endpoints for the execution engine that streams fills
// and prices to the monitor and accepts abort commands.
type EngineConfig struct {
	FeedURL           string   `toml:"feed_url"`
	ControlURL        string   `toml:"control_url"`
	AuthToken         string   `toml:"auth_token"`
	ReconnectInterval duration `toml:"reconnect_interval"`
	MaxReconnectWait  duration `toml:"max_reconnect_wait"`
	PingInterval      duration `toml:"ping_interval"`
}

// SessionConfig holds defaults applied to sessions started without explicit
// risk parameters. Monetary values are decimal strings to avoid binary
// floating point.
type SessionConfig struct {
	Instrument        string   `toml:"instrument"`
	Allocation        Decimal  `toml:"allocation"`
	MaxPositionSize   Decimal  `toml:"max_position_size"`
	InitialPrice      Decimal  `toml:"initial_price"`
	StopLossRatio     Decimal  `toml:"stop_loss_ratio"`
	TakeProfitRatio   Decimal  `toml:"take_profit_ratio"`
	StatusInterval    duration `toml:"status_interval"`
	JournalLifecycle  bool     `toml:"journal_lifecycle"`
	MirrorStatusRedis bool     `toml:"mirror_status_redis"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the session
// journal.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ServerConfig holds HTTP server parameters for the status API.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	AuthToken   string   `toml:"auth_token"`
	CORSOrigins []string `toml:"cors_origins"`

	// RateLimit caps requests per client per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Decimal is a wrapper around decimal.Decimal that decodes from TOML strings,
// keeping monetary values out of binary floating point end to end.
type Decimal struct {
	decimal.Decimal
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML string decoding.
func (d *Decimal) UnmarshalText(text []byte) error {
	var err error
	d.Decimal, err = decimal.NewFromString(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Decimal) MarshalText() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

// dec builds a Decimal from a literal known to be valid.
func dec(s string) Decimal {
	return Decimal{decimal.RequireFromString(s)}
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			FeedURL:           "ws://localhost:9001/feed",
			ControlURL:        "ws://localhost:9001/control",
			ReconnectInterval: duration{time.Second},
			MaxReconnectWait:  duration{30 * time.Second},
			PingInterval:      duration{15 * time.Second},
		},
		Session: SessionConfig{
			Instrument:        "BTC-USD",
			Allocation:        dec("1000"),
			MaxPositionSize:   dec("10"),
			InitialPrice:      dec("0"),
			StopLossRatio:     dec("0.2"),
			TakeProfitRatio:   dec("0"),
			StatusInterval:    duration{5 * time.Second},
			JournalLifecycle:  true,
			MirrorStatusRedis: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "riskmon",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"session_started", "session_stopped", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine — the feed is mandatory in monitoring modes; the control socket
	// may be empty, in which case aborts are local only.
	needsFeed := c.Mode == "monitor" || c.Mode == "full"
	if needsFeed && c.Engine.FeedURL == "" {
		errs = append(errs, "engine: feed_url must not be empty for mode "+c.Mode)
	}
	if c.Engine.ReconnectInterval.Duration <= 0 {
		errs = append(errs, "engine: reconnect_interval must be > 0")
	}
	if c.Engine.MaxReconnectWait.Duration < c.Engine.ReconnectInterval.Duration {
		errs = append(errs, "engine: max_reconnect_wait must be >= reconnect_interval")
	}

	// Session defaults
	if !c.Session.Allocation.IsPositive() {
		errs = append(errs, "session: allocation must be > 0")
	}
	if !c.Session.MaxPositionSize.IsPositive() {
		errs = append(errs, "session: max_position_size must be > 0")
	}
	if c.Session.InitialPrice.IsNegative() {
		errs = append(errs, "session: initial_price must be >= 0")
	}
	if c.Mode == "monitor" && !c.Session.InitialPrice.IsPositive() {
		errs = append(errs, "session: initial_price must be > 0 for mode monitor (the default session is the only session in that mode)")
	}
	if c.Session.StopLossRatio.IsNegative() {
		errs = append(errs, "session: stop_loss_ratio must be >= 0")
	}
	if c.Session.TakeProfitRatio.IsNegative() {
		errs = append(errs, "session: take_profit_ratio must be >= 0")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}
	if c.Mode == "server" && !c.Server.Enabled {
		errs = append(errs, "server: must be enabled for mode server")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
