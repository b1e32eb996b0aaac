package builtin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"image-worker-service/internal/model"
)

// BorderMatting separates foreground from the colour that dominates the image
// frame. It only suits product-style shots on a plain backdrop.
type BorderMatting struct{}

func NewBorderMatting() *BorderMatting { return &BorderMatting{} }

func (m *BorderMatting) RemoveBackground(ctx context.Context, src []byte, opts model.MattingOptions) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := imaging.Clone(img)
	w, h := out.Rect.Dx(), out.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	bg := borderColor(out)
	alpha := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			score := colorScore(out.Pix[i:i+3], bg)
			alpha[y*w+x] = trimap(score, opts)
		}
	}
	if opts.ErodeSize > 1 {
		alpha = erode(alpha, w, h, opts.ErodeSize/2)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			out.Pix[i+3] = uint8(uint16(out.Pix[i+3]) * uint16(alpha[y*w+x]) / 255)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func borderColor(img *image.NRGBA) [3]float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var sum [3]float64
	n := 0
	add := func(x, y int) {
		i := img.PixOffset(x, y)
		for c := 0; c < 3; c++ {
			sum[c] += float64(img.Pix[i+c])
		}
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		add(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		add(w-1, y)
	}
	for c := range sum {
		sum[c] /= float64(n)
	}
	return sum
}

// colorScore maps distance from the backdrop colour into 0..255.
func colorScore(px []uint8, bg [3]float64) int {
	var d float64
	for c := 0; c < 3; c++ {
		diff := float64(px[c]) - bg[c]
		d += diff * diff
	}
	s := int(math.Sqrt(d) * 2)
	if s > 255 {
		s = 255
	}
	return s
}

func trimap(score int, opts model.MattingOptions) uint8 {
	if !opts.AlphaMatting {
		if score >= 128 {
			return 255
		}
		return 0
	}
	fg, bg := opts.ForegroundThreshold, opts.BackgroundThreshold
	switch {
	case score >= fg:
		return 255
	case score <= bg:
		return 0
	case fg <= bg:
		return 255
	default:
		return uint8((score - bg) * 255 / (fg - bg))
	}
}

// erode applies a separable min filter of radius r.
func erode(a []uint8, w, h, r int) []uint8 {
	tmp := make([]uint8, len(a))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m := uint8(255)
			for k := max(0, x-r); k <= min(w-1, x+r); k++ {
				m = min(m, a[y*w+k])
			}
			tmp[y*w+x] = m
		}
	}
	out := make([]uint8, len(a))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m := uint8(255)
			for k := max(0, y-r); k <= min(h-1, y+r); k++ {
				m = min(m, tmp[k*w+x])
			}
			out[y*w+x] = m
		}
	}
	return out
}
