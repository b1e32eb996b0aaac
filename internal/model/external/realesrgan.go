package external

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// RealESRGAN shells out to realesrgan-ncnn-vulkan; extra outscale passes are
// done by Lanczos resampling of the model output.
type RealESRGAN struct {
	bin    string
	model  string
	native int
	gpu    int
	run    Runner
}

func NewRealESRGAN(bin, modelName string, native, gpu int, run Runner) *RealESRGAN {
	if run == nil {
		run = ExecRunner
	}
	if native < 1 {
		native = NativeScaleOf(modelName)
	}
	return &RealESRGAN{bin: bin, model: modelName, native: native, gpu: gpu, run: run}
}

// NativeScaleOf infers the factor from names like realesrgan-x4plus; 4 when absent.
func NativeScaleOf(modelName string) int {
	n := strings.ToLower(modelName)
	switch {
	case strings.Contains(n, "x2"):
		return 2
	case strings.Contains(n, "x8"):
		return 8
	default:
		return 4
	}
}

func (r *RealESRGAN) NativeScale() int { return r.native }

func (r *RealESRGAN) Upscale(ctx context.Context, img image.Image, outscale int) (image.Image, error) {
	dir, err := os.MkdirTemp("", "realesrgan-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.png")
	out := filepath.Join(dir, "output.png")
	if err := imaging.Save(img, in); err != nil {
		return nil, err
	}

	args := []string{
		"-i", in, "-o", out,
		"-n", r.model,
		"-s", strconv.Itoa(r.native),
		"-g", strconv.Itoa(r.gpu),
		"-f", "png",
	}
	if _, err := r.run(ctx, r.bin, args...); err != nil {
		return nil, err
	}

	res, err := imaging.Open(out)
	if err != nil {
		return nil, fmt.Errorf("realesrgan produced no output: %w", err)
	}
	if outscale > 1 {
		b := res.Bounds()
		res = imaging.Resize(res, b.Dx()*outscale, b.Dy()*outscale, imaging.Lanczos)
	}
	return res, nil
}
