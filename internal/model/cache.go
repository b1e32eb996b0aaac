package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"image-worker-service/internal/entity"
)

// Handle is a loaded model bound to the backend that actually initialized.
// It is never mutated after construction.
type Handle struct {
	Name         Name
	Version      string
	Backend      Backend
	Model        any
	LoadedAt     time.Time
	LoadDuration time.Duration
}

// LoadFunc builds a model on the given backend and reports its version.
type LoadFunc func(ctx context.Context, backend Backend) (model any, version string, err error)

type Spec struct {
	Name Name
	Load LoadFunc
}

type slot struct {
	spec   Spec
	mu     sync.Mutex // held only while the slot is empty
	handle atomic.Pointer[Handle]
}

// Cache memoizes one handle per resource for the lifetime of the process.
// Reads after the first successful load are lock-free.
type Cache struct {
	slots   map[Name]*slot
	lockDir string
	logger  *zap.Logger
}

type Option func(*Cache)

// WithLockDir serializes loading across processes on one host with a file
// lock per resource in dir.
func WithLockDir(dir string) Option {
	return func(c *Cache) { c.lockDir = dir }
}

func NewCache(logger *zap.Logger, specs []Spec, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		slots:  make(map[Name]*slot, len(specs)),
		logger: logger,
	}
	for _, s := range specs {
		c.slots[s.Name] = &slot{spec: s}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Acquire returns the memoized handle for name, loading it on first use.
// A failed load leaves the slot empty so a later call retries.
func (c *Cache) Acquire(ctx context.Context, name Name) (*Handle, error) {
	s, ok := c.slots[name]
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", name, entity.ErrInvalidParameter)
	}
	if h := s.handle.Load(); h != nil {
		return h, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.handle.Load(); h != nil {
		return h, nil
	}

	h, err := c.initialize(ctx, s.spec)
	if err != nil {
		return nil, err
	}
	s.handle.Store(h)
	return h, nil
}

func (c *Cache) initialize(ctx context.Context, spec Spec) (*Handle, error) {
	if c.lockDir != "" {
		unlock, err := c.lockFile(ctx, spec.Name)
		if err != nil {
			c.logger.Warn("model lock unavailable, loading without it",
				zap.String("resource", string(spec.Name)), zap.Error(err))
		} else {
			defer unlock()
		}
	}

	h, accErr := c.load(ctx, spec, BackendAccelerated)
	if accErr == nil {
		return h, nil
	}
	c.logger.Warn("accelerated backend unavailable, falling back to cpu",
		zap.String("resource", string(spec.Name)), zap.Error(accErr))

	h, cpuErr := c.load(ctx, spec, BackendCPU)
	if cpuErr == nil {
		return h, nil
	}
	c.logger.Error("fallback backend failed",
		zap.String("resource", string(spec.Name)), zap.Error(cpuErr))

	return nil, &entity.ResourceInitializationError{
		Resource:    string(spec.Name),
		Accelerated: accErr,
		Fallback:    cpuErr,
	}
}

func (c *Cache) load(ctx context.Context, spec Spec, backend Backend) (*Handle, error) {
	start := time.Now()
	m, version, err := spec.Load(ctx, backend)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("loader returned no model")
	}

	h := &Handle{
		Name:         spec.Name,
		Version:      version,
		Backend:      backend,
		Model:        m,
		LoadedAt:     time.Now().UTC(),
		LoadDuration: time.Since(start),
	}
	c.logger.Info("model loaded",
		zap.String("resource", string(h.Name)),
		zap.String("version", h.Version),
		zap.String("backend", string(h.Backend)),
		zap.Int64("duration_ms", h.LoadDuration.Milliseconds()),
	)
	return h, nil
}

func (c *Cache) lockFile(ctx context.Context, name Name) (func(), error) {
	if err := os.MkdirAll(c.lockDir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(c.lockDir, string(name)+".lock"))
	ok, err := fl.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lock %s not acquired", fl.Path())
	}
	return func() { _ = fl.Unlock() }, nil
}

// Preload acquires every named resource (all of them when names is empty).
func (c *Cache) Preload(ctx context.Context, names ...Name) ([]*Handle, error) {
	if len(names) == 0 {
		names = c.Names()
	}
	out := make([]*Handle, 0, len(names))
	for _, n := range names {
		h, err := c.Acquire(ctx, n)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Names lists the registered resources in a stable order.
func (c *Cache) Names() []Name {
	names := make([]Name, 0, len(c.slots))
	for n := range c.slots {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Loaded returns the handle for name if it has already been initialized.
func (c *Cache) Loaded(name Name) (*Handle, bool) {
	s, ok := c.slots[name]
	if !ok {
		return nil, false
	}
	h := s.handle.Load()
	return h, h != nil
}

// Close releases every loaded model that owns a process or session and empties
// its slot.
func (c *Cache) Close() error {
	var errs []error
	for _, n := range c.Names() {
		s := c.slots[n]
		s.mu.Lock()
		if h := s.handle.Swap(nil); h != nil {
			if cl, ok := h.Model.(io.Closer); ok {
				if err := cl.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close %s: %w", n, err))
				}
			}
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Segmenter acquires the segmentation resource.
func (c *Cache) Segmenter(ctx context.Context) (Segmenter, *Handle, error) {
	h, err := c.Acquire(ctx, Segmentation)
	if err != nil {
		return nil, nil, err
	}
	m, ok := h.Model.(Segmenter)
	if !ok {
		return nil, nil, fmt.Errorf("resource %s: model %T is not a segmenter", h.Name, h.Model)
	}
	return m, h, nil
}

// Upscaler acquires the super-resolution resource.
func (c *Cache) Upscaler(ctx context.Context) (Upscaler, *Handle, error) {
	h, err := c.Acquire(ctx, SuperResolution)
	if err != nil {
		return nil, nil, err
	}
	m, ok := h.Model.(Upscaler)
	if !ok {
		return nil, nil, fmt.Errorf("resource %s: model %T is not an upscaler", h.Name, h.Model)
	}
	return m, h, nil
}
