// Package artifact owns the on-disk layout: uploads, results and transient
// intermediates.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidName = errors.New("invalid artifact name")

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// WriteFile writes through a sibling .part file and renames it over path, so a
// rerun overwrites deterministically and a failed write leaves nothing behind.
func WriteFile(path string, write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	werr := write(f)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return werr
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// WriteBytes is WriteFile for an in-memory payload.
func WriteBytes(path string, data []byte) error {
	return WriteFile(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Remove deletes path, treating a missing file as success.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Dir is a flat directory of uuid-named artifacts.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string { return d.root }

// NewName returns a fresh unique file name with the given extension.
func (d *Dir) NewName(ext string) string {
	return uuid.NewString() + strings.ToLower(ext)
}

// Path resolves name inside the directory, rejecting anything that would escape it.
func (d *Dir) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(d.root, name), nil
}

// Save copies r into name, enforcing a size limit when limit > 0.
func (d *Dir) Save(name string, r io.Reader, limit int64) (int64, error) {
	p, err := d.Path(name)
	if err != nil {
		return 0, err
	}
	var n int64
	err = WriteFile(p, func(w io.Writer) error {
		src := r
		if limit > 0 {
			src = io.LimitReader(r, limit+1)
		}
		var cerr error
		n, cerr = io.Copy(w, src)
		if cerr != nil {
			return cerr
		}
		if limit > 0 && n > limit {
			return ErrTooLarge
		}
		return nil
	})
	return n, err
}

var ErrTooLarge = errors.New("artifact exceeds size limit")

// Open opens an existing artifact; os.ErrNotExist is returned for unknown names.
func (d *Dir) Open(name string) (*os.File, error) {
	p, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}
