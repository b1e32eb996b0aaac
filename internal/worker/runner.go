package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/model"
	"image-worker-service/internal/pipeline"
	"image-worker-service/internal/progress"
	"image-worker-service/internal/stage"
)

// Runner validates a job and drives the stage or pipeline for its kind.
type Runner struct {
	removeBackground stage.Executor
	enhance          stage.Executor
	vectorize        stage.Executor
	composer         *pipeline.Composer
	logger           *zap.Logger
}

func NewRunner(res stage.Resources, tracer model.Tracer, profile model.VectorProfile, workDir string, logger *zap.Logger) (*Runner, error) {
	vec, err := stage.NewVectorize(tracer, profile, logger)
	if err != nil {
		return nil, err
	}
	enh := stage.NewEnhance(res, logger)
	return &Runner{
		removeBackground: stage.NewRemoveBackground(res, logger),
		enhance:          enh,
		vectorize:        vec,
		composer:         pipeline.NewComposer(enh, vec, workDir, logger),
		logger:           logger,
	}, nil
}

// Validate rejects a job before any resource is touched.
func Validate(job entity.Job) error {
	if !job.Kind.Valid() {
		return fmt.Errorf("unknown task type %q: %w", job.Kind, entity.ErrInvalidParameter)
	}
	kind := job.EffectiveKind()
	if kind.NeedsScale() || job.Params.Scale != 0 {
		if !entity.ValidScale(job.Params.Scale) {
			return fmt.Errorf("scale %d not in %v: %w", job.Params.Scale, entity.AllowedScales, entity.ErrInvalidParameter)
		}
	}
	if job.OutputPath == "" {
		return fmt.Errorf("output path is empty: %w", entity.ErrInvalidParameter)
	}
	if job.InputPath == "" || !artifact.Exists(job.InputPath) {
		return fmt.Errorf("input file %q: %w", job.InputPath, entity.ErrInputNotFound)
	}
	return nil
}

// Run executes job and reports progress to sink. It does not retry.
func (r *Runner) Run(ctx context.Context, job entity.Job, sink progress.Sink) (*entity.Result, error) {
	if err := Validate(job); err != nil {
		return nil, err
	}

	var err error
	switch kind := job.EffectiveKind(); kind {
	case entity.KindRemoveBackground:
		err = r.removeBackground.Run(ctx, job.InputPath, job.OutputPath, job.Params, sink)
	case entity.KindEnhance:
		err = r.enhance.Run(ctx, job.InputPath, job.OutputPath, job.Params, sink)
	case entity.KindVectorize:
		err = r.vectorize.Run(ctx, job.InputPath, job.OutputPath, job.Params, sink)
	case entity.KindVectorizeEnhance:
		err = r.composer.EnhanceThenVectorize(ctx, job, sink)
	default:
		err = fmt.Errorf("unknown task type %q: %w", kind, entity.ErrInvalidParameter)
	}
	if err != nil {
		return nil, err
	}

	return &entity.Result{
		Status:     entity.StatusSuccess,
		OutputPath: job.OutputPath,
		Filename:   filepath.Base(job.OutputPath),
	}, nil
}
