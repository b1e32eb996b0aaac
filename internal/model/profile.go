package model

import (
	"fmt"
	"strings"
)

type TraceMode string

const (
	ModeSpline  TraceMode = "spline"
	ModePolygon TraceMode = "polygon"
	ModePixel   TraceMode = "pixel"
)

// VectorProfile is the closed set of tracing knobs. Build one with a preset or
// NewVectorProfile; both validate.
type VectorProfile struct {
	Name            string
	Mode            TraceMode
	Hierarchical    bool // stacked layers instead of cut-out
	FilterSpeckle   int  // patches smaller than N*N px are discarded
	ColorPrecision  int  // significant bits per channel, 1..8
	LayerDifference int  // gradient step between layers
	CornerThreshold int  // degrees
	LengthThreshold float64
	MaxIterations   int
	SpliceThreshold int // degrees
	PathPrecision   int // decimal places in path data
}

var (
	ProfileFast = VectorProfile{
		Name: "fast", Mode: ModePolygon, Hierarchical: true,
		FilterSpeckle: 8, ColorPrecision: 4, LayerDifference: 32,
		CornerThreshold: 90, LengthThreshold: 6, MaxIterations: 5,
		SpliceThreshold: 60, PathPrecision: 0,
	}
	ProfileBalanced = VectorProfile{
		Name: "balanced", Mode: ModeSpline, Hierarchical: true,
		FilterSpeckle: 4, ColorPrecision: 6, LayerDifference: 16,
		CornerThreshold: 60, LengthThreshold: 4, MaxIterations: 10,
		SpliceThreshold: 45, PathPrecision: 2,
	}
	ProfileHighFidelity = VectorProfile{
		Name: "high_fidelity", Mode: ModeSpline, Hierarchical: true,
		FilterSpeckle: 2, ColorPrecision: 8, LayerDifference: 8,
		CornerThreshold: 45, LengthThreshold: 3.5, MaxIterations: 20,
		SpliceThreshold: 30, PathPrecision: 3,
	}
)

// Profiles lists the presets from fastest to most faithful.
func Profiles() []VectorProfile {
	return []VectorProfile{ProfileFast, ProfileBalanced, ProfileHighFidelity}
}

// ProfileByName looks a preset up; there is no implicit default.
func ProfileByName(name string) (VectorProfile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range Profiles() {
		if p.Name == name {
			return p, nil
		}
	}
	return VectorProfile{}, fmt.Errorf("unknown vectorize profile %q", name)
}

func (p VectorProfile) Validate() error {
	switch p.Mode {
	case ModeSpline, ModePolygon, ModePixel:
	default:
		return fmt.Errorf("profile %s: unknown mode %q", p.Name, p.Mode)
	}
	if p.FilterSpeckle < 0 || p.FilterSpeckle > 128 {
		return fmt.Errorf("profile %s: filter_speckle %d out of range 0..128", p.Name, p.FilterSpeckle)
	}
	if p.ColorPrecision < 1 || p.ColorPrecision > 8 {
		return fmt.Errorf("profile %s: color_precision %d out of range 1..8", p.Name, p.ColorPrecision)
	}
	if p.LayerDifference < 0 || p.LayerDifference > 255 {
		return fmt.Errorf("profile %s: layer_difference %d out of range 0..255", p.Name, p.LayerDifference)
	}
	if p.CornerThreshold < 0 || p.CornerThreshold > 180 {
		return fmt.Errorf("profile %s: corner_threshold %d out of range 0..180", p.Name, p.CornerThreshold)
	}
	if p.SpliceThreshold < 0 || p.SpliceThreshold > 180 {
		return fmt.Errorf("profile %s: splice_threshold %d out of range 0..180", p.Name, p.SpliceThreshold)
	}
	if p.LengthThreshold < 3.5 || p.LengthThreshold > 10 {
		return fmt.Errorf("profile %s: length_threshold %.1f out of range 3.5..10", p.Name, p.LengthThreshold)
	}
	if p.MaxIterations < 1 {
		return fmt.Errorf("profile %s: max_iterations must be positive", p.Name)
	}
	if p.PathPrecision < 0 || p.PathPrecision > 8 {
		return fmt.Errorf("profile %s: path_precision %d out of range 0..8", p.Name, p.PathPrecision)
	}
	return nil
}
