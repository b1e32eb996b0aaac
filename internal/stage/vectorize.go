package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/model"
	"image-worker-service/internal/progress"
)

// Vectorize traces a raster into SVG with a profile fixed at construction.
type Vectorize struct {
	tracer  model.Tracer
	profile model.VectorProfile
	logger  *zap.Logger
}

func NewVectorize(tracer model.Tracer, profile model.VectorProfile, logger *zap.Logger) (*Vectorize, error) {
	if tracer == nil {
		return nil, fmt.Errorf("vectorize: tracer is required")
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("vectorize: %w", err)
	}
	return &Vectorize{tracer: tracer, profile: profile, logger: logger}, nil
}

func (s *Vectorize) Name() string { return NameVectorize }

func (s *Vectorize) Profile() model.VectorProfile { return s.profile }

func (s *Vectorize) Run(ctx context.Context, in, out string, _ entity.Params, sink progress.Sink) error {
	sink.Update(ctx, 0)

	if !artifact.Exists(in) {
		return fmt.Errorf("%s: %w", in, entity.ErrInputNotFound)
	}
	sink.Update(ctx, 10)

	s.logger.Info("vectorizing", zap.String("input", in), zap.String("profile", s.profile.Name))
	svg, err := s.tracer.Trace(ctx, in, s.profile)
	if err != nil {
		return wrap(s.Name(), err)
	}
	sink.Update(ctx, 90)

	if err := artifact.WriteBytes(out, svg); err != nil {
		return wrap(s.Name(), err)
	}
	sink.Update(ctx, 100)
	return nil
}
