package builtin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"

	"image-worker-service/internal/model"
)

// RunTracer emits one SVG path per quantized colour, built from rectangles of
// merged pixel runs. Of the profile it honours ColorPrecision, FilterSpeckle
// and Hierarchical.
type RunTracer struct{}

func NewRunTracer() *RunTracer { return &RunTracer{} }

const transparent = -1

func (t *RunTracer) Trace(ctx context.Context, inputPath string, p model.VectorProfile) ([]byte, error) {
	src, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	img := imaging.Clone(src)
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	labels, palette := quantize(img, p.ColorPrecision)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.FilterSpeckle > 1 {
		filterSpeckle(labels, w, h, p.FilterSpeckle*p.FilterSpeckle)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rects := mergeRuns(labels, w, h, len(palette))
	return renderSVG(w, h, palette, rects, p.Hierarchical), nil
}

func quantize(img *image.NRGBA, precision int) ([]int32, []uint32) {
	shift := uint(8 - precision)
	half := uint32(0)
	if shift > 0 {
		half = 1 << (shift - 1)
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	labels := make([]int32, w*h)
	index := map[uint32]int32{}
	var palette []uint32

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			if img.Pix[i+3] < 128 {
				labels[y*w+x] = transparent
				continue
			}
			var key uint32
			for c := 0; c < 3; c++ {
				v := uint32(img.Pix[i+c])>>shift<<shift | half
				if v > 255 {
					v = 255
				}
				key = key<<8 | v
			}
			id, ok := index[key]
			if !ok {
				id = int32(len(palette))
				index[key] = id
				palette = append(palette, key)
			}
			labels[y*w+x] = id
		}
	}
	return labels, palette
}

// filterSpeckle recolours 4-connected patches smaller than minArea with their
// most common neighbouring colour.
func filterSpeckle(labels []int32, w, h, minArea int) {
	seen := make([]bool, len(labels))
	var stack, patch []int
	for start := range labels {
		if seen[start] || labels[start] == transparent {
			continue
		}
		id := labels[start]
		patch = patch[:0]
		stack = append(stack[:0], start)
		seen[start] = true
		neighbours := map[int32]int{}

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			patch = append(patch, i)
			x, y := i%w, i/w
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if n[0] < 0 || n[0] >= w || n[1] < 0 || n[1] >= h {
					continue
				}
				j := n[1]*w + n[0]
				if labels[j] != id {
					if labels[j] != transparent {
						neighbours[labels[j]]++
					}
					continue
				}
				if !seen[j] {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}

		if len(patch) >= minArea || len(neighbours) == 0 {
			continue
		}
		best, bestN := id, 0
		for n, c := range neighbours {
			if c > bestN || (c == bestN && n < best) {
				best, bestN = n, c
			}
		}
		for _, i := range patch {
			labels[i] = best
		}
	}
}

type rect struct{ x, y, w, h int }

func mergeRuns(labels []int32, w, h, colors int) [][]rect {
	out := make([][]rect, colors)
	type runKey struct {
		x0, x1 int
		id     int32
	}
	open := map[runKey]int{} // run -> index into out[id]

	for y := 0; y < h; y++ {
		next := map[runKey]int{}
		for x := 0; x < w; {
			id := labels[y*w+x]
			x0 := x
			for x < w && labels[y*w+x] == id {
				x++
			}
			if id == transparent {
				continue
			}
			k := runKey{x0, x, id}
			if idx, ok := open[k]; ok {
				out[id][idx].h++
				next[k] = idx
				continue
			}
			out[id] = append(out[id], rect{x: x0, y: y, w: x - x0, h: 1})
			next[k] = len(out[id]) - 1
		}
		open = next
	}
	return out
}

func renderSVG(w, h int, palette []uint32, rects [][]rect, stacked bool) []byte {
	order := make([]int, len(palette))
	area := make([]int, len(palette))
	total := 0
	for i := range order {
		order[i] = i
		for _, r := range rects[i] {
			area[i] += r.w * r.h
		}
		total += area[i]
	}
	opaque := total == w*h
	sort.SliceStable(order, func(a, b int) bool { return area[order[a]] > area[order[b]] })

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&buf, `<svg version="1.1" xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`+"\n", w, h, w, h)

	for rank, id := range order {
		if area[id] == 0 {
			continue
		}
		buf.WriteString(`<path fill="#`)
		buf.WriteString(fmt.Sprintf("%06x", palette[id]))
		buf.WriteString(`" d="`)
		if stacked && opaque && rank == 0 {
			// the dominant colour underlays everything else
			fmt.Fprintf(&buf, "M0 0h%dv%dh-%dZ", w, h, w)
		} else {
			for _, r := range rects[id] {
				buf.WriteString("M")
				buf.WriteString(strconv.Itoa(r.x))
				buf.WriteByte(' ')
				buf.WriteString(strconv.Itoa(r.y))
				fmt.Fprintf(&buf, "h%dv%dh-%dZ", r.w, r.h, r.w)
			}
		}
		buf.WriteString("\"/>\n")
	}
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}
