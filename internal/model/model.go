// Package model defines the opaque transformation capabilities the worker
// drives and the process-wide cache that owns their loaded handles.
package model

import (
	"context"
	"image"
)

// Name identifies a cached resource.
type Name string

const (
	Segmentation    Name = "segmentation"
	SuperResolution Name = "super_resolution"
)

// Backend is the execution path a handle ended up bound to.
type Backend string

const (
	BackendAccelerated Backend = "accelerated"
	BackendCPU         Backend = "cpu"
)

// MattingOptions tune the alpha edge produced by background removal.
type MattingOptions struct {
	AlphaMatting        bool
	ForegroundThreshold int
	BackgroundThreshold int
	ErodeSize           int
}

// SharpEdges is the matting profile used by the remove-background stage.
var SharpEdges = MattingOptions{
	AlphaMatting:        true,
	ForegroundThreshold: 250,
	BackgroundThreshold: 15,
	ErodeSize:           5,
}

// Segmenter removes the background of an encoded image and returns a PNG with alpha.
type Segmenter interface {
	RemoveBackground(ctx context.Context, src []byte, opts MattingOptions) ([]byte, error)
}

// Upscaler is a super-resolution model with a fixed native factor. Upscale
// returns an image NativeScale()*outscale times larger than img.
type Upscaler interface {
	NativeScale() int
	Upscale(ctx context.Context, img image.Image, outscale int) (image.Image, error)
}

// Tracer converts a raster file into SVG markup.
type Tracer interface {
	Trace(ctx context.Context, inputPath string, profile VectorProfile) ([]byte, error)
}
