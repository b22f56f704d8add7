package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RISKMON_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RISKMON_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.FeedURL, "RISKMON_ENGINE_FEED_URL")
	setStr(&cfg.Engine.ControlURL, "RISKMON_ENGINE_CONTROL_URL")
	setStr(&cfg.Engine.AuthToken, "RISKMON_ENGINE_AUTH_TOKEN")
	setDuration(&cfg.Engine.ReconnectInterval, "RISKMON_ENGINE_RECONNECT_INTERVAL")
	setDuration(&cfg.Engine.MaxReconnectWait, "RISKMON_ENGINE_MAX_RECONNECT_WAIT")
	setDuration(&cfg.Engine.PingInterval, "RISKMON_ENGINE_PING_INTERVAL")

	// ── Session ──
	setStr(&cfg.Session.Instrument, "RISKMON_SESSION_INSTRUMENT")
	setDecimal(&cfg.Session.Allocation, "RISKMON_SESSION_ALLOCATION")
	setDecimal(&cfg.Session.MaxPositionSize, "RISKMON_SESSION_MAX_POSITION_SIZE")
	setDecimal(&cfg.Session.InitialPrice, "RISKMON_SESSION_INITIAL_PRICE")
	setDecimal(&cfg.Session.StopLossRatio, "RISKMON_SESSION_STOP_LOSS_RATIO")
	setDecimal(&cfg.Session.TakeProfitRatio, "RISKMON_SESSION_TAKE_PROFIT_RATIO")
	setDuration(&cfg.Session.StatusInterval, "RISKMON_SESSION_STATUS_INTERVAL")
	setBool(&cfg.Session.JournalLifecycle, "RISKMON_SESSION_JOURNAL_LIFECYCLE")
	setBool(&cfg.Session.MirrorStatusRedis, "RISKMON_SESSION_MIRROR_STATUS_REDIS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RISKMON_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKMON_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKMON_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKMON_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKMON_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKMON_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RISKMON_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RISKMON_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RISKMON_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RISKMON_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RISKMON_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RISKMON_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RISKMON_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RISKMON_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RISKMON_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RISKMON_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RISKMON_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RISKMON_SERVER_PORT")
	setStr(&cfg.Server.AuthToken, "RISKMON_SERVER_AUTH_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "RISKMON_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "RISKMON_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "RISKMON_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RISKMON_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKMON_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKMON_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RISKMON_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "RISKMON_MODE")
	setStr(&cfg.LogLevel, "RISKMON_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setDecimal(dst *Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			dst.Decimal = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
