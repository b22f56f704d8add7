package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "monitor"
log_level = "debug"

[engine]
feed_url = "ws://engine:9001/feed"
reconnect_interval = "2s"

[session]
allocation = "5000"
stop_loss_ratio = "0.15"

[redis]
addr = "redis:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "monitor", cfg.Mode)
	require.Equal(t, "ws://engine:9001/feed", cfg.Engine.FeedURL)
	require.Equal(t, 2*time.Second, cfg.Engine.ReconnectInterval.Duration)
	require.Equal(t, "5000", cfg.Session.Allocation.String())
	require.Equal(t, "0.15", cfg.Session.StopLossRatio.String())
	require.Equal(t, "redis:6379", cfg.Redis.Addr)

	// Untouched sections keep their defaults.
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"full\"\n"), 0o644))

	t.Setenv("RISKMON_REDIS_PASSWORD", "hunter2")
	t.Setenv("RISKMON_SESSION_ALLOCATION", "2500.50")
	t.Setenv("RISKMON_SERVER_PORT", "9090")
	t.Setenv("RISKMON_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RISKMON_MODE", "server")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "hunter2", cfg.Redis.Password)
	require.Equal(t, "2500.5", cfg.Session.Allocation.String())
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, "server", cfg.Mode)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Session.Allocation = Decimal{}
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
	require.Contains(t, err.Error(), "unknown log_level")
	require.Contains(t, err.Error(), "redis: addr")
	require.Contains(t, err.Error(), "session: allocation")
	require.Contains(t, err.Error(), "server: port")
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.AuthToken = "engine-token"
	cfg.Redis.Password = "secret"
	cfg.Postgres.Password = "secret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Server.AuthToken = "api-token"
	cfg.Notify.TelegramToken = "tg"

	red := RedactedConfig(&cfg)
	require.Equal(t, "***", red.Engine.AuthToken)
	require.Equal(t, "***", red.Redis.Password)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Postgres.DSN)
	require.Equal(t, "***", red.Server.AuthToken)
	require.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	require.Equal(t, "secret", cfg.Redis.Password)
}
