package external_test

import (
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-worker-service/internal/model"
	"image-worker-service/internal/model/external"
)

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestProbeGPU(t *testing.T) {
	ok := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "nvidia-smi", name)
		return []byte("GPU 0: NVIDIA L4 (UUID: GPU-1234)\n"), nil
	}
	dev, err := external.ProbeGPU(context.Background(), ok, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dev, "GPU 0"))

	empty := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("No devices were found\n"), nil
	}
	_, err = external.ProbeGPU(context.Background(), empty, nil)
	assert.Error(t, err)

	broken := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exec: not found")
	}
	_, err = external.ProbeGPU(context.Background(), broken, []string{"rocm-smi"})
	assert.Error(t, err)
}

type rembgServerStub struct {
	mu       sync.Mutex
	requests []map[string]string
	sizes    []int
}

func (s *rembgServerStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/remove" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		data, _ := io.ReadAll(f)

		fields := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		s.mu.Lock()
		s.requests = append(s.requests, fields)
		s.sizes = append(s.sizes, len(data))
		s.mu.Unlock()

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})
}

func TestRembgServer_PostsMattingFields(t *testing.T) {
	stub := &rembgServerStub{}
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	r := external.NewRembgClient(srv.URL+"/", "birefnet-general", srv.Client())

	out, err := r.RemoveBackground(context.Background(), []byte("jpeg"), model.SharpEdges)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(out))

	require.Len(t, stub.requests, 1)
	got := stub.requests[0]
	assert.Equal(t, "birefnet-general", got["model"])
	assert.Equal(t, "true", got["a"])
	assert.Equal(t, "250", got["af"])
	assert.Equal(t, "15", got["ab"])
	assert.Equal(t, "5", got["ae"])
	assert.Equal(t, 4, stub.sizes[0])

	// A client-only value owns no process.
	assert.NoError(t, r.Close())
}

func TestRembgServer_WarmSendsTinyImageWithoutMatting(t *testing.T) {
	stub := &rembgServerStub{}
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	r := external.NewRembgClient(srv.URL, "u2net", srv.Client())
	require.NoError(t, r.Warm(context.Background()))

	require.Len(t, stub.requests, 1)
	assert.Equal(t, "u2net", stub.requests[0]["model"])
	assert.NotContains(t, stub.requests[0], "a")
}

func TestRembgServer_ReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "onnxruntime: CUDA out of memory", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	r := external.NewRembgClient(srv.URL, "u2net", srv.Client())
	_, err := r.RemoveBackground(context.Background(), []byte("jpeg"), model.SharpEdges)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestRealESRGAN_AppliesOutscaleAfterModel(t *testing.T) {
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		src, err := imaging.Open(argAfter(args, "-i"))
		if err != nil {
			return nil, err
		}
		b := src.Bounds()
		return nil, imaging.Save(imaging.Resize(src, b.Dx()*4, b.Dy()*4, imaging.Box), argAfter(args, "-o"))
	}
	up := external.NewRealESRGAN("realesrgan-ncnn-vulkan", "realesrgan-x4plus", 0, 0, run)
	assert.Equal(t, 4, up.NativeScale())

	out, err := up.Upscale(context.Background(), image.NewNRGBA(image.Rect(0, 0, 3, 2)), 2)
	require.NoError(t, err)
	assert.Equal(t, 24, out.Bounds().Dx())
	assert.Equal(t, 16, out.Bounds().Dy())
}

func TestNativeScaleOf(t *testing.T) {
	assert.Equal(t, 2, external.NativeScaleOf("RealESRGAN_x2plus"))
	assert.Equal(t, 4, external.NativeScaleOf("realesrgan-x4plus-anime"))
	assert.Equal(t, 8, external.NativeScaleOf("model-x8"))
	assert.Equal(t, 4, external.NativeScaleOf("custom"))
}

func TestVTracer_ProfileToFlags(t *testing.T) {
	v := external.NewVTracer("vtracer", func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, os.WriteFile(argAfter(args, "--output"), []byte("<svg/>"), 0o600)
	})

	args := v.Args("in.png", "out.svg", model.ProfileFast)
	assert.Equal(t, "polygon", argAfter(args, "--mode"))
	assert.Equal(t, "stacked", argAfter(args, "--hierarchical"))
	assert.Equal(t, "8", argAfter(args, "--filter_speckle"))
	assert.Equal(t, "6", argAfter(args, "--segment_length"))

	svg, err := v.Trace(context.Background(), "in.png", model.ProfileBalanced)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(svg))
}
