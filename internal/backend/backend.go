// Package backend opens the shared infrastructure of a process: the SQLite
// record store, the cache substrate and the job queue.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spese-analytics/internal/amqp"
	"spese-analytics/internal/cache"
	"spese-analytics/internal/config"
	"spese-analytics/internal/storage"
)

// CacheType selects the cache substrate.
type CacheType string

const (
	RedisCache  CacheType = "redis"
	MemoryCache CacheType = "memory"
)

// IsValid checks if the cache type is supported
func (t CacheType) IsValid() bool {
	return t == RedisCache || t == MemoryCache
}

// memoryCleanupInterval is how often expired in-process entries are swept.
const memoryCleanupInterval = time.Minute

// CleanupFunc releases a resource.
type CleanupFunc func() error

// Resources are the clients one process shares between its components.
type Resources struct {
	Repository  *storage.SQLiteRepository
	CacheStore  cache.Store
	Coordinator *cache.Coordinator
	Queue       *amqp.Client

	cleanups []CleanupFunc
}

func (r *Resources) addCleanup(fn CleanupFunc) {
	r.cleanups = append(r.cleanups, fn)
}

// Checks returns the readiness checks of the opened resources.
func (r *Resources) Checks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if r.Repository != nil {
		checks["sqlite"] = r.Repository.Ping
	}
	if r.CacheStore != nil {
		checks["cache"] = r.CacheStore.Ping
	}
	if r.Queue != nil {
		checks["amqp"] = func(context.Context) error {
			if !r.Queue.Healthy() {
				return amqp.ErrCircuitOpen
			}
			return nil
		}
	}
	return checks
}

// Close releases resources in reverse opening order.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanups = nil
	return errors.Join(errs...)
}

// Factory opens resources from the application configuration.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Open connects every resource. On failure the ones already opened are closed.
func (f *Factory) Open(ctx context.Context, cfg *config.Config) (*Resources, error) {
	res := &Resources{}

	repo, err := f.openRepository(cfg)
	if err != nil {
		return nil, err
	}
	res.Repository = repo
	res.addCleanup(repo.Close)

	if err := f.openCache(ctx, cfg, res); err != nil {
		res.Close()
		return nil, err
	}

	queue, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, amqp.QueueEvents, amqp.QueueReports)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	res.Queue = queue
	res.addCleanup(queue.Close)
	f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange)

	return res, nil
}

// openRepository opens the SQLite record store and applies migrations.
func (f *Factory) openRepository(cfg *config.Config) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite repository", "db_path", cfg.SQLiteDBPath)
	return repo, nil
}

// openCache opens the configured cache substrate, wraps it in a coordinator
// and registers its cleanup on res.
func (f *Factory) openCache(ctx context.Context, cfg *config.Config, res *Resources) error {
	cacheType := CacheType(cfg.CacheBackend)
	if !cacheType.IsValid() {
		return fmt.Errorf("invalid cache backend: %s", cfg.CacheBackend)
	}

	switch cacheType {
	case RedisCache:
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		res.CacheStore = store
		res.addCleanup(store.Close)
	case MemoryCache:
		store := cache.NewLRUStore(cfg.CacheMaxSize)
		manager := cache.NewManager()
		manager.Register(store)
		manager.StartCleanup(memoryCleanupInterval)
		res.CacheStore = store
		res.addCleanup(func() error {
			manager.Stop()
			return store.Close()
		})
		f.logger.Warn("Using in-process cache, analysis state is not shared between processes",
			"max_entries", cfg.CacheMaxSize)
	}

	res.Coordinator = cache.NewCoordinator(res.CacheStore, cfg.CacheTTLs())
	f.logger.Info("Initialized cache", "backend", cacheType)
	return nil
}
