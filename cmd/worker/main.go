// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"image-worker-service/internal/bootstrap"
	"image-worker-service/internal/config"
	"image-worker-service/internal/logging"
	"image-worker-service/internal/model"
	"image-worker-service/internal/repository/postgresql"
	"image-worker-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logging.Must("error", "auto").Fatal("config", zap.Error(err))
	}

	logger := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	// Redis
	rdb, err := bootstrap.Redis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer rdb.Close()

	// DI
	store, pgRepo, closeStore, err := bootstrap.OpenStore(ctx, cfg, rdb)
	if err != nil {
		logger.Fatal("result backend", zap.Error(err))
	}
	defer closeStore()

	queue := bootstrap.Queue(cfg.Redis, rdb)
	publisher := bootstrap.Publisher(cfg.Kafka, logger)
	defer publisher.Close()

	runner, cache, err := bootstrap.Runner(cfg, logger)
	if err != nil {
		logger.Fatal("runner", zap.Error(err))
	}
	defer cache.Close()

	if cfg.Worker.Preload {
		// Failures are not fatal: Acquire retries on the first job.
		if _, err := cache.Preload(ctx, model.Segmentation, model.SuperResolution); err != nil {
			logger.Warn("model preload failed", zap.Error(err))
		}
	}

	processor := worker.NewProcessor(store, runner, publisher, logger)
	pool := worker.NewPool(queue, processor, cfg.Worker.Concurrency,
		time.Duration(cfg.Worker.ClaimTimeoutSeconds)*time.Second, logger)

	logger.Info("worker started",
		zap.Int("workers", cfg.Worker.Concurrency),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("queue_key", cfg.Redis.QueueKey),
		zap.String("processing_key", cfg.Redis.ProcessingKey),
		zap.String("result_backend", cfg.ResultBackend),
		zap.String("postgres_dsn", bootstrap.RedactDSN(cfg.Postgres.DSN)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pool.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// Reaper: returns tasks from processing to their lane once a worker
		// has held them past the visibility timeout.
		worker.Reap(gctx, queue,
			time.Duration(cfg.Worker.ReapIntervalSeconds)*time.Second,
			time.Duration(cfg.Worker.VisibilitySeconds)*time.Second,
			logger,
		)
		return nil
	})
	if pgRepo != nil {
		g.Go(func() error {
			sweep(gctx, pgRepo, time.Duration(cfg.ResultTTLSeconds)*time.Second, logger)
			return nil
		})
	}

	_ = g.Wait()
	logger.Info("worker stopped")
}

// sweep purges expired terminal tasks from postgres once an hour.
func sweep(ctx context.Context, repo *postgresql.TaskRepository, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.PurgeExpired(ctx, retention)
			if err != nil {
				logger.Warn("purge expired tasks", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired tasks", zap.Int64("count", n))
			}
		}
	}
}
