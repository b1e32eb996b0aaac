package stage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/model"
	"image-worker-service/internal/progress"
)

type RemoveBackground struct {
	res    Resources
	opts   model.MattingOptions
	logger *zap.Logger
}

func NewRemoveBackground(res Resources, logger *zap.Logger) *RemoveBackground {
	return &RemoveBackground{res: res, opts: model.SharpEdges, logger: logger}
}

func (s *RemoveBackground) Name() string { return NameRemoveBackground }

func (s *RemoveBackground) Run(ctx context.Context, in, out string, _ entity.Params, sink progress.Sink) error {
	sink.Update(ctx, 0)

	data, err := os.ReadFile(in)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", in, entity.ErrInputNotFound)
		}
		return wrap(s.Name(), err)
	}
	sink.Update(ctx, 50)

	seg, h, err := s.res.Segmenter(ctx)
	if err != nil {
		return wrap(s.Name(), err)
	}
	s.logger.Info("removing background",
		zap.String("input", in),
		zap.String("model", h.Version),
		zap.String("backend", string(h.Backend)),
	)

	png, err := seg.RemoveBackground(ctx, data, s.opts)
	if err != nil {
		return wrap(s.Name(), err)
	}
	if err := artifact.WriteBytes(out, png); err != nil {
		return wrap(s.Name(), err)
	}

	sink.Update(ctx, 100)
	return nil
}
