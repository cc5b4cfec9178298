// Package app wires configuration into the long-lived components shared by
// the server and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	tg "github.com/go-telegram/bot"
	"github.com/google/uuid"

	"github.com/wallet-watch/internal/adapter"
	"github.com/wallet-watch/internal/config"
	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/metrics"
	"github.com/wallet-watch/internal/notifier"
	"github.com/wallet-watch/internal/plan"
	"github.com/wallet-watch/internal/storage"
	"github.com/wallet-watch/internal/telegram"
	"github.com/wallet-watch/internal/worker"
)

// Resources holds open connections; Close releases them in reverse order
type Resources struct {
	Store  storage.Store
	Redis  *storage.RedisCache // nil when Redis is disabled or unreachable
	closer []func()
}

// Close releases every connection opened by Open
func (r *Resources) Close() {
	for i := len(r.closer) - 1; i >= 0; i-- {
		r.closer[i]()
	}
}

// InitLogging configures the global logger from cfg
func InitLogging(cfg *config.Config) *logging.Logger {
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	return logging.GetGlobalLogger()
}

// Open connects the store and, when enabled, Redis. Postgres migrations run
// before the store is returned. A Redis failure is logged and tolerated:
// sessions fall back to memory and the sweep runs without dedup or lease.
func Open(cfg *config.Config) (*Resources, error) {
	logger := logging.GetGlobalLogger()
	res := &Resources{}

	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory store; wallets are lost on restart")
		res.Store = storage.NewMemoryStore()
	default:
		pg := cfg.Database.Postgres
		if err := storage.RunMigrations(pg.URL(), pg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		db, err := storage.NewPostgresDB(&pg)
		if err != nil {
			return nil, err
		}
		res.closer = append(res.closer, db.Close)
		res.Store = storage.NewPostgresStore(db)
	}

	if cfg.Database.Redis.Enabled {
		cache, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without it")
		} else {
			res.Redis = cache
			res.closer = append(res.closer, func() { _ = cache.Close() })
		}
	}

	return res, nil
}

// Catalog builds the plan catalog with configured checkout links
func Catalog(cfg *config.Config) *plan.Catalog {
	return plan.NewCatalog(cfg.Payment.Links)
}

// NewBot creates the Telegram client. Extra options add update handlers.
func NewBot(cfg *config.Config, opts ...tg.Option) (*tg.Bot, error) {
	b, err := tg.New(cfg.Telegram.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return b, nil
}

// SessionStore picks Redis-backed sessions when available
func SessionStore(cfg *config.Config, res *Resources) telegram.SessionStore {
	if res.Redis != nil {
		return storage.NewRedisSessionStore(res.Redis, cfg.Database.Redis.SessionTTL)
	}
	return storage.NewMemorySessionStore(cfg.Database.Redis.SessionTTL)
}

// Sweep is a configured sweep worker plus what its health endpoint reports on
type Sweep struct {
	Worker   *worker.SweepWorker
	Explorer *adapter.EtherscanClient
	closer   func()
}

// Close releases the activity log connection, if any
func (s *Sweep) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// NewSweep builds the sweep worker on top of res
func NewSweep(ctx context.Context, cfg *config.Config, res *Resources, sender notifier.Sender, m *metrics.Metrics) (*Sweep, error) {
	logger := logging.GetGlobalLogger()

	explorer := adapter.NewEtherscanClient(adapter.EtherscanConfig{
		APIKey:      cfg.Explorer.APIKey,
		BaseURL:     cfg.Explorer.BaseURL,
		ChainID:     cfg.Explorer.ChainID,
		RPS:         cfg.Explorer.RPS,
		Timeout:     cfg.Explorer.Timeout,
		MaxAttempts: cfg.Explorer.MaxAttempts,
		PageSize:    cfg.Explorer.PageSize,
	})

	wcfg := &worker.SweepWorkerConfig{
		Store:         res.Store,
		Explorer:      explorer,
		Notifier:      notifier.NewTelegramNotifier(sender),
		Rank:          Catalog(cfg).Rank,
		Chain:         explorer.Chain(),
		Metrics:       m,
		Interval:      cfg.Sweep.Interval,
		Concurrency:   cfg.Sweep.Concurrency,
		FetchTimeout:  cfg.Explorer.Timeout + 5*time.Second,
		NotifyTimeout: cfg.Sweep.NotifyTimeout,
		LeaseTTL:      cfg.Sweep.LeaseTTL,
	}

	if res.Redis != nil {
		wcfg.Guard = storage.NewNotificationGuard(res.Redis, cfg.Database.Redis.DedupTTL)
		wcfg.Lease = storage.NewSweepLease(res.Redis, leaseOwner())
	}

	sweep := &Sweep{Explorer: explorer}

	if cfg.Database.ClickHouse.Enabled {
		ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, activity log disabled")
		} else if err := storage.RunClickHouseMigrations(ctx, ch, cfg.Database.ClickHouse.MigrationsPath); err != nil {
			logger.WithError(err).Warn("ClickHouse migrations failed, activity log disabled")
			_ = ch.Close()
		} else {
			wcfg.Activity = storage.NewActivityRepository(ch)
			sweep.closer = func() { _ = ch.Close() }
		}
	}

	w, err := worker.NewSweepWorker(wcfg)
	if err != nil {
		sweep.Close()
		return nil, err
	}
	sweep.Worker = w
	return sweep, nil
}

func leaseOwner() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
}
