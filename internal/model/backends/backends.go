// Package backends binds the resource cache to concrete implementations: the
// external tools on the accelerated path, the builtin ones as CPU fallback.
package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"image-worker-service/internal/config"
	"image-worker-service/internal/model"
	"image-worker-service/internal/model/builtin"
	"image-worker-service/internal/model/external"
)

var errNoCommand = errors.New("no command configured")

// Specs returns the cache specs for every resource.
func Specs(cfg config.Models, run external.Runner, logger *zap.Logger) []model.Spec {
	if run == nil {
		run = external.ExecRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return []model.Spec{
		{Name: model.Segmentation, Load: segmentation(cfg, run, logger)},
		{Name: model.SuperResolution, Load: superResolution(cfg, run, logger)},
	}
}

// NewCache is the worker's cache with the configured lock directory.
func NewCache(cfg config.Models, run external.Runner, logger *zap.Logger) *model.Cache {
	return model.NewCache(logger, Specs(cfg, run, logger), model.WithLockDir(cfg.LockDir))
}

// accelerated resolves bin and confirms a GPU is visible.
func accelerated(ctx context.Context, bin string, probe []string, run external.Runner, logger *zap.Logger) (string, error) {
	if bin == "" {
		return "", errNoCommand
	}
	path, err := external.LookPath(bin)
	if err != nil {
		return "", err
	}
	dev, err := external.ProbeGPU(ctx, run, probe)
	if err != nil {
		return "", err
	}
	logger.Info("gpu detected", zap.String("command", path), zap.String("device", dev))
	return path, nil
}

func segmentation(cfg config.Models, run external.Runner, logger *zap.Logger) model.LoadFunc {
	return func(ctx context.Context, b model.Backend) (any, string, error) {
		switch b {
		case model.BackendAccelerated:
			path, err := accelerated(ctx, cfg.Segmentation.Command, cfg.GPUProbe, run, logger)
			if err != nil {
				return nil, "", err
			}
			timeout := time.Duration(cfg.Segmentation.StartupTimeoutSeconds) * time.Second
			srv, err := external.StartRembg(ctx, path, cfg.Segmentation.Model, timeout, logger)
			if err != nil {
				return nil, "", err
			}
			if err := srv.Warm(ctx); err != nil {
				_ = srv.Close()
				return nil, "", err
			}
			return srv, cfg.Segmentation.Model, nil
		case model.BackendCPU:
			return builtin.NewBorderMatting(), "builtin-border-matting", nil
		default:
			return nil, "", fmt.Errorf("unknown backend %q", b)
		}
	}
}

func superResolution(cfg config.Models, run external.Runner, logger *zap.Logger) model.LoadFunc {
	sr := cfg.SuperResolution
	native := sr.NativeScale
	if native == 0 {
		native = external.NativeScaleOf(sr.Model)
	}
	return func(ctx context.Context, b model.Backend) (any, string, error) {
		switch b {
		case model.BackendAccelerated:
			path, err := accelerated(ctx, sr.Command, cfg.GPUProbe, run, logger)
			if err != nil {
				return nil, "", err
			}
			return external.NewRealESRGAN(path, sr.Model, native, sr.GPU, run), sr.Model, nil
		case model.BackendCPU:
			up, err := builtin.NewLanczos(native)
			if err != nil {
				return nil, "", err
			}
			return up, fmt.Sprintf("builtin-lanczos-x%d", native), nil
		default:
			return nil, "", fmt.Errorf("unknown backend %q", b)
		}
	}
}

// Tracer picks vtracer when it is installed and the builtin tracer otherwise.
func Tracer(cfg config.Models, run external.Runner, logger *zap.Logger) model.Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Vectorize.Command != "" {
		if path, err := external.LookPath(cfg.Vectorize.Command); err == nil {
			logger.Info("tracer selected", zap.String("tracer", "vtracer"), zap.String("command", path))
			return external.NewVTracer(path, run)
		}
	}
	logger.Info("tracer selected", zap.String("tracer", "builtin"))
	return builtin.NewRunTracer()
}
