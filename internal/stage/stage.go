// Package stage holds the atomic transformation steps a job is made of.
package stage

import (
	"context"
	"errors"

	"image-worker-service/internal/entity"
	"image-worker-service/internal/model"
	"image-worker-service/internal/progress"
)

const (
	NameRemoveBackground = "remove_background"
	NameEnhance          = "enhance"
	NameVectorize        = "vectorize"
)

// Executor turns the artifact at in into the artifact at out.
type Executor interface {
	Name() string
	Run(ctx context.Context, in, out string, params entity.Params, sink progress.Sink) error
}

// Resources is the read-through view of the model cache the stages need.
type Resources interface {
	Segmenter(ctx context.Context) (model.Segmenter, *model.Handle, error)
	Upscaler(ctx context.Context) (model.Upscaler, *model.Handle, error)
}

// wrap classifies err: initialization and parameter errors pass through,
// everything else becomes a StageExecutionError.
func wrap(stage string, err error) error {
	if err == nil {
		return nil
	}
	var initErr *entity.ResourceInitializationError
	var stageErr *entity.StageExecutionError
	switch {
	case errors.As(err, &initErr), errors.As(err, &stageErr):
		return err
	case errors.Is(err, entity.ErrInvalidParameter), errors.Is(err, entity.ErrInputNotFound):
		return err
	}
	return &entity.StageExecutionError{Stage: stage, Cause: err}
}
