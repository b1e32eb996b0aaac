package external

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"image-worker-service/internal/model"
)

// RembgServer talks to a long-lived `rembg s` process. The server keeps its
// onnx session per model name, so the weights load on the first request and
// stay resident for every later job.
type RembgServer struct {
	model   string
	baseURL string
	client  *http.Client

	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewRembgClient binds to a rembg server that is already listening.
func NewRembgClient(baseURL, modelName string, client *http.Client) *RembgServer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &RembgServer{
		model:   modelName,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// StartRembg launches `rembg s` on a free loopback port owned by the returned
// server and waits until it accepts connections. Tests replace it.
var StartRembg = startRembg

func startRembg(ctx context.Context, bin, modelName string, timeout time.Duration, logger *zap.Logger) (*RembgServer, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("rembg server port: %w", err)
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	// Not bound to ctx: the process lives as long as the cache handle.
	cmd := exec.Command(bin, "s", "--host", "127.0.0.1", "--port", strconv.Itoa(port))
	out := &zapio.Writer{Log: logger.With(zap.String("command", "rembg s")), Level: zap.DebugLevel}
	cmd.Stdout, cmd.Stderr = out, out
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start rembg server: %w", err)
	}

	r := NewRembgClient("http://"+addr, modelName, nil)
	r.cmd, r.done = cmd, make(chan struct{})
	go func() {
		r.waitErr = cmd.Wait()
		_ = out.Close()
		close(r.done)
	}()

	if err := r.waitReady(ctx, addr, timeout); err != nil {
		_ = r.Close()
		return nil, err
	}
	logger.Info("rembg server started", zap.String("addr", addr), zap.Int("pid", cmd.Process.Pid))
	return r, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func (r *RembgServer) waitReady(ctx context.Context, addr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-r.done:
			return fmt.Errorf("rembg server exited before listening: %v", r.waitErr)
		case <-ctx.Done():
			return fmt.Errorf("rembg server not ready on %s: %w", addr, ctx.Err())
		case <-tick.C:
		}
	}
}

// Warm sends a 1x1 image so the server loads the model weights now rather
// than on the first job.
func (r *RembgServer) Warm(ctx context.Context) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 1, 1)), imaging.PNG); err != nil {
		return err
	}
	if _, err := r.RemoveBackground(ctx, buf.Bytes(), model.MattingOptions{}); err != nil {
		return fmt.Errorf("rembg warm-up: %w", err)
	}
	return nil
}

// Fields are the form values posted alongside the image.
func (r *RembgServer) Fields(opts model.MattingOptions) map[string]string {
	f := map[string]string{"model": r.model}
	if opts.AlphaMatting {
		f["a"] = "true"
		f["af"] = strconv.Itoa(opts.ForegroundThreshold)
		f["ab"] = strconv.Itoa(opts.BackgroundThreshold)
		f["ae"] = strconv.Itoa(opts.ErodeSize)
	}
	return f
}

func (r *RembgServer) RemoveBackground(ctx context.Context, src []byte, opts model.MattingOptions) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "input")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(src); err != nil {
		return nil, err
	}
	for k, v := range r.Fields(opts) {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/remove", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rembg server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rembg server: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rembg server: %s: %s", resp.Status, tail(data, 512))
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("rembg server: empty response")
	}
	return data, nil
}

// Close stops the server process; it is a no-op for a client-only value.
func (r *RembgServer) Close() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	default:
	}
	_ = r.cmd.Process.Signal(os.Interrupt)
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		_ = r.cmd.Process.Kill()
		<-r.done
	}
	return nil
}
