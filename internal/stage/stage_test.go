package stage_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"image-worker-service/internal/entity"
	"image-worker-service/internal/model"
	"image-worker-service/internal/model/builtin"
	"image-worker-service/internal/progress"
	"image-worker-service/internal/stage"
)

type recorder struct{ values []int }

func (r *recorder) Update(_ context.Context, p int) { r.values = append(r.values, p) }

type fakeResources struct {
	seg     model.Segmenter
	up      model.Upscaler
	err     error
	touched int
}

func (f *fakeResources) Segmenter(ctx context.Context) (model.Segmenter, *model.Handle, error) {
	f.touched++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.seg, &model.Handle{Name: model.Segmentation, Version: "test", Backend: model.BackendCPU}, nil
}

func (f *fakeResources) Upscaler(ctx context.Context) (model.Upscaler, *model.Handle, error) {
	f.touched++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.up, &model.Handle{Name: model.SuperResolution, Version: "test", Backend: model.BackendCPU}, nil
}

type failingSegmenter struct{}

func (failingSegmenter) RemoveBackground(context.Context, []byte, model.MattingOptions) ([]byte, error) {
	return nil, errors.New("onnx session crashed")
}

func writeImage(t *testing.T, img image.Image, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

func TestRemoveBackground_ProgressAndOutput(t *testing.T) {
	res := &fakeResources{seg: builtin.NewBorderMatting()}
	in := writeImage(t, solid(8, 8, color.White), "in.png")
	out := filepath.Join(t.TempDir(), "results", "out.png")
	rec := &recorder{}

	err := stage.NewRemoveBackground(res, zaptest.NewLogger(t)).Run(context.Background(), in, out, entity.Params{}, rec)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 50, 100}, rec.values)
	_, err = os.Stat(out)
	assert.NoError(t, err)
}

func TestRemoveBackground_MissingInput(t *testing.T) {
	res := &fakeResources{seg: builtin.NewBorderMatting()}
	out := filepath.Join(t.TempDir(), "out.png")

	err := stage.NewRemoveBackground(res, zaptest.NewLogger(t)).
		Run(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), out, entity.Params{}, progress.Discard)

	assert.ErrorIs(t, err, entity.ErrInputNotFound)
	assert.Zero(t, res.touched)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveBackground_ErrorClassification(t *testing.T) {
	in := writeImage(t, solid(4, 4, color.Black), "in.png")
	out := filepath.Join(t.TempDir(), "out.png")

	res := &fakeResources{seg: failingSegmenter{}}
	err := stage.NewRemoveBackground(res, zaptest.NewLogger(t)).Run(context.Background(), in, out, entity.Params{}, progress.Discard)
	var stageErr *entity.StageExecutionError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, stage.NameRemoveBackground, stageErr.Stage)
	assert.EqualError(t, stageErr.Cause, "onnx session crashed")

	initErr := &entity.ResourceInitializationError{Resource: "segmentation"}
	res = &fakeResources{err: initErr}
	err = stage.NewRemoveBackground(res, zaptest.NewLogger(t)).Run(context.Background(), in, out, entity.Params{}, progress.Discard)
	assert.Same(t, initErr, err)
}

func TestEnhance_ScaleAboveNativeUsesOutscale(t *testing.T) {
	up, err := builtin.NewLanczos(4)
	require.NoError(t, err)
	res := &fakeResources{up: up}
	in := writeImage(t, solid(4, 3, color.NRGBA{10, 200, 30, 255}), "in.png")
	out := filepath.Join(t.TempDir(), "out.png")
	rec := &recorder{}

	err = stage.NewEnhance(res, zaptest.NewLogger(t)).Run(context.Background(), in, out, entity.Params{Scale: 8}, rec)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 10, 20, 90, 100}, rec.values)
	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestEnhance_ScaleBelowNativeRunsAtNative(t *testing.T) {
	up, err := builtin.NewLanczos(4)
	require.NoError(t, err)
	res := &fakeResources{up: up}
	in := writeImage(t, image.NewGray(image.Rect(0, 0, 2, 2)), "gray.png")
	out := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, stage.NewEnhance(res, zaptest.NewLogger(t)).Run(context.Background(), in, out, entity.Params{Scale: 2}, progress.Discard))

	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestEnhance_InvalidScaleTouchesNoResource(t *testing.T) {
	res := &fakeResources{}
	rec := &recorder{}

	err := stage.NewEnhance(res, zaptest.NewLogger(t)).Run(context.Background(), "in.png", "out.png", entity.Params{Scale: 3}, rec)

	assert.ErrorIs(t, err, entity.ErrInvalidParameter)
	assert.Zero(t, res.touched)
	assert.Empty(t, rec.values)
}

func TestOutscale(t *testing.T) {
	assert.Equal(t, 2, stage.Outscale(8, 4))
	assert.Equal(t, 1, stage.Outscale(4, 4))
	assert.Equal(t, 1, stage.Outscale(2, 4))
	assert.Equal(t, 4, stage.Outscale(8, 2))
}

func TestToRGB_DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{100, 50, 25, 10})

	got := stage.ToRGB(src).NRGBAAt(0, 0)
	assert.Equal(t, color.NRGBA{100, 50, 25, 255}, got)

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 77})
	assert.Equal(t, color.NRGBA{77, 77, 77, 255}, stage.ToRGB(gray).NRGBAAt(0, 0))
}

type fakeTracer struct {
	profile model.VectorProfile
	err     error
}

func (f *fakeTracer) Trace(ctx context.Context, in string, p model.VectorProfile) ([]byte, error) {
	f.profile = p
	if f.err != nil {
		return nil, f.err
	}
	return []byte("<svg/>"), nil
}

func TestVectorize_UsesConfiguredProfile(t *testing.T) {
	tr := &fakeTracer{}
	v, err := stage.NewVectorize(tr, model.ProfileHighFidelity, zaptest.NewLogger(t))
	require.NoError(t, err)

	in := writeImage(t, solid(2, 2, color.Black), "in.png")
	out := filepath.Join(t.TempDir(), "out.svg")
	rec := &recorder{}

	require.NoError(t, v.Run(context.Background(), in, out, entity.Params{}, rec))
	assert.Equal(t, []int{0, 10, 90, 100}, rec.values)
	assert.Equal(t, "high_fidelity", tr.profile.Name)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
}

func TestVectorize_Failures(t *testing.T) {
	bad := model.ProfileBalanced
	bad.ColorPrecision = 0
	_, err := stage.NewVectorize(&fakeTracer{}, bad, zaptest.NewLogger(t))
	assert.Error(t, err)

	v, err := stage.NewVectorize(&fakeTracer{err: errors.New("trace failed")}, model.ProfileFast, zaptest.NewLogger(t))
	require.NoError(t, err)

	err = v.Run(context.Background(), filepath.Join(t.TempDir(), "nope.png"), "out.svg", entity.Params{}, progress.Discard)
	assert.ErrorIs(t, err, entity.ErrInputNotFound)

	in := writeImage(t, solid(2, 2, color.Black), "in.png")
	out := filepath.Join(t.TempDir(), "out.svg")
	err = v.Run(context.Background(), in, out, entity.Params{}, progress.Discard)
	var stageErr *entity.StageExecutionError
	assert.ErrorAs(t, err, &stageErr)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
