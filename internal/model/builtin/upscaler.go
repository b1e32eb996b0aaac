// Package builtin holds pure-Go stand-ins for the model capabilities. They are
// the guaranteed-available CPU fallback when the external tools cannot load.
package builtin

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Lanczos upscales by resampling; it mimics a model with a fixed native factor.
type Lanczos struct {
	native int
}

func NewLanczos(native int) (*Lanczos, error) {
	if native < 1 {
		return nil, fmt.Errorf("native scale must be positive, got %d", native)
	}
	return &Lanczos{native: native}, nil
}

func (l *Lanczos) NativeScale() int { return l.native }

func (l *Lanczos) Upscale(ctx context.Context, img image.Image, outscale int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if outscale < 1 {
		outscale = 1
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	factor := l.native * outscale
	return imaging.Resize(img, b.Dx()*factor, b.Dy()*factor, imaging.Lanczos), nil
}
