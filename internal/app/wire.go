package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradeforge/riskmon/internal/cache/redis"
	"github.com/tradeforge/riskmon/internal/config"
	"github.com/tradeforge/riskmon/internal/domain"
	"github.com/tradeforge/riskmon/internal/executor"
	"github.com/tradeforge/riskmon/internal/notify"
	"github.com/tradeforge/riskmon/internal/risk"
	"github.com/tradeforge/riskmon/internal/store/postgres"
)

// migrationsLockTTL bounds how long the migrations leader lock is held if the
// process dies mid-migration.
const migrationsLockTTL = 2 * time.Minute

// Dependencies bundles every dependency the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Caches
	PriceCache  domain.PriceCache
	StatusCache domain.StatusCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Persistence
	Journal domain.SessionJournal

	// Notifications
	Notifier *notify.Notifier

	// Risk core
	Aborts  domain.AbortSink
	Manager *risk.StrategyManager
}

// needsPostgres returns true when the configuration asks for a persistent
// session journal.
func needsPostgres(cfg *config.Config) bool {
	return cfg.Session.JournalLifecycle
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.StatusCache = redis.NewStatusCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- PostgreSQL (only when the journal is enabled) ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations under a distributed lock so concurrent monitor
		// instances don't race each other on schema changes.
		if cfg.Postgres.RunMigrations {
			release, err := deps.LockManager.Acquire(ctx, "locks:migrations", migrationsLockTTL)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: acquire migrations lock: %w", err)
			}
			err = pgClient.RunMigrations(ctx)
			release()
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Journal = postgres.NewJournalStore(pgClient.Pool())
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Abort sink ---
	// Without a control socket, aborts stop the local session only.
	if cfg.Engine.ControlURL != "" {
		sink := executor.NewEngineSink(cfg.Engine.ControlURL, cfg.Engine.AuthToken, logger)
		closers = append(closers, func() { _ = sink.Close() })
		deps.Aborts = sink
	} else {
		deps.Aborts = executor.NewLocalSink(logger)
	}

	// --- Risk core ---
	emitters := []domain.SessionEmitter{
		notify.NewSessionNotifier(deps.Notifier),
		newBusEmitter(deps.SignalBus, logger),
	}
	if cfg.Session.MirrorStatusRedis {
		emitters = append(emitters, newCacheEmitter(deps.StatusCache, logger))
	}
	if deps.Journal != nil {
		emitters = append(emitters, newJournalEmitter(deps.Journal, logger))
	}
	deps.Manager = risk.NewStrategyManager(deps.Aborts, newMultiEmitter(emitters...), logger)

	return deps, cleanup, nil
}
