// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "image-worker-service/docs"
	"image-worker-service/internal/bootstrap"
	"image-worker-service/internal/config"
	"image-worker-service/internal/logging"
	"image-worker-service/internal/service"
	httptransport "image-worker-service/internal/transport/http"
)

// @title Image Worker API
// @version 1.0
// @description Background removal, super-resolution and vectorization tasks.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logging.Must("error", "auto").Fatal("config", zap.Error(err))
	}

	logger := logging.Must(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	rdb, err := bootstrap.Redis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer rdb.Close()

	store, _, closeStore, err := bootstrap.OpenStore(ctx, cfg, rdb)
	if err != nil {
		logger.Fatal("result backend", zap.Error(err))
	}
	defer closeStore()

	uploads, results, err := bootstrap.Dirs(cfg.Storage)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	svc := service.NewTaskService(store, bootstrap.Queue(cfg.Redis, rdb), uploads, results, cfg.Storage.MaxFileSize)
	h := httptransport.NewHandler(svc, uploads, results, cfg.Storage.MaxFileSize, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httptransport.Routes(h, cfg.HTTP.CORSOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	logger.Info("api stopped")
}
