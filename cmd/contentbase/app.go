package main

import (
	"context"
	"fmt"

	"github.com/adrianmcphee/contentbase"
	"github.com/adrianmcphee/contentbase/books"
	"github.com/adrianmcphee/contentbase/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// app holds the services a command runs against
type app struct {
	cfg       *config.Config
	logger    *contentbase.ZapLogger
	registry  *prometheus.Registry
	metrics   *contentbase.PrometheusMetrics
	redis     *redis.Client
	locker    contentbase.Locker
	backend   contentbase.Backend
	docs      *contentbase.BackendDocumentStore
	snapshots *contentbase.SnapshotService
}

// newApp loads the configuration and connects every service
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := contentbase.NewZapLoggerFromConfig(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  contentbase.NewPrometheusMetrics(registry),
	}

	opts := contentbase.RedisOptionsWithOverrides(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.PoolSize, 0)
	opts.DB = cfg.Redis.DB
	a.redis = redis.NewClient(opts)

	if cfg.Lock.Distributed {
		a.locker = contentbase.NewRedisLocker(a.redis, cfg.Redis.Prefix).
			WithTTL(cfg.Lock.TTL).
			WithLogger(logger).
			WithMetrics(a.metrics)
	} else {
		a.locker = contentbase.NewMemoryLocker().WithMetrics(a.metrics)
	}

	backend, err := openBackend(ctx, cfg, a.locker)
	if err != nil {
		a.redis.Close()
		return nil, err
	}
	a.backend = contentbase.NewInstrumentedBackend(backend, a.metrics)

	if key, _ := cfg.Backend.Key(); key != nil {
		a.backend, err = contentbase.NewEncryptedBackend(a.backend, key)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.docs = contentbase.NewBackendDocumentStore(a.backend, contentbase.NewTermIndex(a.redis, cfg.Redis.Prefix), logger)
	a.snapshots, err = contentbase.NewSnapshotService(a.docs, a.backend)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create snapshot service: %w", err)
	}
	a.snapshots.
		WithRetroactiveSnapshots(cfg.Snapshots.Retroactive).
		WithLogger(logger).
		WithMetrics(a.metrics)

	logger.Debug("services connected",
		"backend", cfg.Backend.Type,
		"bucket", cfg.Backend.Bucket,
		"redis", cfg.Redis.Addr,
		"distributed_locks", cfg.Lock.Distributed,
	)
	return a, nil
}

// openBackend creates the blob store named by the configuration. Object
// stores without native conditional deletes get per-key locks.
func openBackend(ctx context.Context, cfg *config.Config, locker contentbase.Locker) (contentbase.Backend, error) {
	switch cfg.Backend.Type {
	case "filesystem":
		return contentbase.NewFilesystemBackend(cfg.Backend.Bucket), nil
	case "s3":
		b, err := contentbase.NewS3BackendFromConfig(ctx, cfg.Backend.ToBackendConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 backend: %w", err)
		}
		return contentbase.NewS3BackendWithLock(b, locker), nil
	case "minio":
		return contentbase.NewMinIOBackendWithLock(cfg.Backend.MinIOConfig(), locker), nil
	case "gcs":
		b, err := contentbase.NewGCSBackend(ctx, cfg.Backend.GCSConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create gcs backend: %w", err)
		}
		return b, nil
	default:
		return nil, contentbase.WithContext(contentbase.ErrInvalidConfig, map[string]interface{}{
			"field":  "backend.type",
			"reason": "unknown backend " + cfg.Backend.Type,
		})
	}
}

// books returns the book collection with history recording
func (a *app) books() *contentbase.Collection[books.Book] {
	return books.NewCollection(a.docs).
		WithSnapshots(a.snapshots).
		WithLogger(a.logger).
		WithMetrics(a.metrics)
}

// Close releases every connection and writes the metrics file if requested
func (a *app) Close() {
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			a.logger.Warn("failed to close snapshot service", "error", err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Warn("failed to close backend", "error", err)
		}
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("failed to close redis", "error", err)
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
			a.logger.Warn("failed to write metrics", "file", metricsFile, "error", err)
		}
	}
	_ = a.logger.Sync()
}

// withApp runs fn against a connected app
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
