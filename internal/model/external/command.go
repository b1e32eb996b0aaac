// Package external drives the command-line model tools (rembg,
// realesrgan-ncnn-vulkan, vtracer) on the accelerated path.
package external

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, tail(out, 512))
	}
	return out, nil
}

// LookPath resolves a binary; it is a variable so tests can stub it.
var LookPath = exec.LookPath

// ProbeGPU runs the configured probe command (nvidia-smi -L by default) and
// returns the first device line it reports.
func ProbeGPU(ctx context.Context, run Runner, probe []string) (string, error) {
	if len(probe) == 0 {
		probe = []string{"nvidia-smi", "-L"}
	}
	out, err := run(ctx, probe[0], probe[1:]...)
	if err != nil {
		return "", fmt.Errorf("gpu probe: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "GPU") {
			return line, nil
		}
	}
	return "", fmt.Errorf("gpu probe: no device reported")
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
