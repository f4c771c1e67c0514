// Package infrastructure provides core service initialization for application startup.
// It assembles the shared systems (logging, metrics, checkpoint persistence and
// its backing stores, blob storage) that the audit pipeline and outer surfaces require.
package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/config"
	"github.com/JaimeStill/emissary/internal/metrics"
	"github.com/JaimeStill/emissary/internal/review"
	"github.com/JaimeStill/emissary/pkg/database"
	"github.com/JaimeStill/emissary/pkg/lifecycle"
	"github.com/JaimeStill/emissary/pkg/storage"
)

// PendingFeed streams review notices as threads suspend.
type PendingFeed interface {
	SubscribePending(ctx context.Context) <-chan review.Pending
}

// Infrastructure holds the core systems shared by the server, CLI, and MCP
// surfaces. Database is set only for the postgres checkpoint backend, Redis
// only for the redis backend, and Storage only when blob storage is configured.
type Infrastructure struct {
	Lifecycle   *lifecycle.Coordinator
	Logger      *slog.Logger
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Database    database.System
	Storage     storage.System
	Redis       *redis.Client
	Checkpoints checkpoint.Store
	// Notifier and Feed are set when the checkpoint backend can publish
	// review notices.
	Notifier review.Notifier
	Feed     PendingFeed
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	return NewWithLogger(cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(cfg *config.Config, logger *slog.Logger) (*Infrastructure, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	infra := &Infrastructure{
		Lifecycle: lifecycle.New(),
		Logger:    logger,
		Registry:  reg,
		Metrics:   metrics.New(reg),
	}

	if err := infra.initCheckpoints(&cfg.Checkpoint, &cfg.Database); err != nil {
		return nil, err
	}

	if cfg.Storage.Enabled() {
		store, err := storage.New(&cfg.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Storage = store
	}

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if i.Database != nil {
		if err := i.Database.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("database start failed: %w", err)
		}
		i.Lifecycle.AddProbe("database", i.Database.Ping)
	}

	if i.Redis != nil {
		i.startRedis()
	}

	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}

	return nil
}

func (i *Infrastructure) initCheckpoints(cfg *checkpoint.Config, dbCfg *database.Config) error {
	switch cfg.Backend {
	case checkpoint.BackendMemory:
		i.Checkpoints = checkpoint.NewMemory()

	case checkpoint.BackendFile:
		store, err := checkpoint.NewFile(cfg.Dir, checkpoint.WithLockTTL(cfg.LockTTLDuration()))
		if err != nil {
			return fmt.Errorf("checkpoint init failed: %w", err)
		}
		i.Checkpoints = store

	case checkpoint.BackendPostgres:
		db, err := database.New(dbCfg, i.Logger)
		if err != nil {
			return fmt.Errorf("database init failed: %w", err)
		}
		i.Database = db
		i.Checkpoints = checkpoint.NewPostgres(db.Connection())

	case checkpoint.BackendRedis:
		i.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := checkpoint.NewRedis(i.Redis, cfg.Redis.Prefix, cfg.LockTTLDuration(), i.Logger)
		i.Checkpoints = store
		i.Notifier = store
		i.Feed = store

	default:
		return fmt.Errorf("%w: %q", checkpoint.ErrUnknownBackend, cfg.Backend)
	}

	i.Logger.Info("checkpoint store selected", "backend", cfg.Backend)
	return nil
}

func (i *Infrastructure) startRedis() {
	logger := i.Logger.With("system", "redis")
	lc := i.Lifecycle

	ping := func(ctx context.Context) error {
		return i.Redis.Ping(ctx).Err()
	}
	lc.AddProbe("redis", ping)

	lc.OnStartup(func() {
		if err := ping(lc.Context()); err != nil {
			logger.Error("redis ping failed", "error", err)
			return
		}
		logger.Info("redis connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := i.Redis.Close(); err != nil {
			logger.Error("redis close failed", "error", err)
			return
		}
		logger.Info("redis connection closed")
	})
}
