package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"image-worker-service/internal/model"
)

// VTracer shells out to the vtracer CLI.
type VTracer struct {
	bin string
	run Runner
}

func NewVTracer(bin string, run Runner) *VTracer {
	if run == nil {
		run = ExecRunner
	}
	return &VTracer{bin: bin, run: run}
}

func (v *VTracer) Args(in, out string, p model.VectorProfile) []string {
	hierarchical := "cutout"
	if p.Hierarchical {
		hierarchical = "stacked"
	}
	return []string{
		"--input", in,
		"--output", out,
		"--colormode", "color",
		"--hierarchical", hierarchical,
		"--mode", string(p.Mode),
		"--filter_speckle", strconv.Itoa(p.FilterSpeckle),
		"--color_precision", strconv.Itoa(p.ColorPrecision),
		"--gradient_step", strconv.Itoa(p.LayerDifference),
		"--corner_threshold", strconv.Itoa(p.CornerThreshold),
		"--segment_length", strconv.FormatFloat(p.LengthThreshold, 'f', -1, 64),
		"--splice_threshold", strconv.Itoa(p.SpliceThreshold),
		"--path_precision", strconv.Itoa(p.PathPrecision),
	}
}

func (v *VTracer) Trace(ctx context.Context, inputPath string, p model.VectorProfile) ([]byte, error) {
	dir, err := os.MkdirTemp("", "vtracer-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "output.svg")
	if _, err := v.run(ctx, v.bin, v.Args(inputPath, out, p)...); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("vtracer produced no output: %w", err)
	}
	return data, nil
}
