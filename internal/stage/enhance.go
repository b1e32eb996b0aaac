package stage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"image-worker-service/internal/artifact"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/progress"
)

type Enhance struct {
	res    Resources
	logger *zap.Logger
}

func NewEnhance(res Resources, logger *zap.Logger) *Enhance {
	return &Enhance{res: res, logger: logger}
}

func (s *Enhance) Name() string { return NameEnhance }

// Outscale is the extra factor applied on top of the model's native one.
// Requests at or below the native factor run at native scale.
func Outscale(requested, native int) int {
	if native > 0 && requested > native {
		return requested / native
	}
	return 1
}

func (s *Enhance) Run(ctx context.Context, in, out string, params entity.Params, sink progress.Sink) error {
	if !entity.ValidScale(params.Scale) {
		return fmt.Errorf("scale %d not in %v: %w", params.Scale, entity.AllowedScales, entity.ErrInvalidParameter)
	}
	sink.Update(ctx, 0)

	src, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", in, entity.ErrInputNotFound)
		}
		return wrap(s.Name(), err)
	}
	img := ToRGB(src)
	sink.Update(ctx, 10)

	up, h, err := s.res.Upscaler(ctx)
	if err != nil {
		return wrap(s.Name(), err)
	}
	native := up.NativeScale()
	outscale := Outscale(params.Scale, native)
	if native != params.Scale {
		s.logger.Warn("model native scale differs from requested scale",
			zap.Int("requested", params.Scale),
			zap.Int("native", native),
			zap.Int("outscale", outscale),
			zap.Int("effective", native*outscale),
		)
	}
	sink.Update(ctx, 20)

	s.logger.Info("enhancing",
		zap.String("input", in),
		zap.Int("width", img.Rect.Dx()),
		zap.Int("height", img.Rect.Dy()),
		zap.String("model", h.Version),
		zap.String("backend", string(h.Backend)),
	)
	res, err := up.Upscale(ctx, img, outscale)
	if err != nil {
		return wrap(s.Name(), err)
	}
	sink.Update(ctx, 90)

	if err := artifact.WriteFile(out, func(w io.Writer) error {
		return imaging.Encode(w, res, imaging.PNG)
	}); err != nil {
		return wrap(s.Name(), err)
	}
	sink.Update(ctx, 100)
	return nil
}

// ToRGB flattens any input to three opaque channels: grey is replicated and
// alpha is dropped without compositing.
func ToRGB(src image.Image) *image.NRGBA {
	img := imaging.Clone(src)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}
