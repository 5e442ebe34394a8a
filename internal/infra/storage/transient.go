package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const transientPrefix = "job-"

// Dir is the local directory that holds transient downloads.
type Dir struct {
	root string
}

// Open creates the directory if needed. Failing here is fatal for the process.
func Open(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	probe, err := os.CreateTemp(abs, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("storage dir not writable: %w", err)
	}
	probe.Close()
	_ = os.Remove(probe.Name())
	return &Dir{root: abs}, nil
}

func (d *Dir) Root() string { return d.root }

// TransientFile is the local artifact of exactly one job.
type TransientFile struct {
	Path string
}

// Acquire reserves a path for jobID. Nothing is created on disk until a fetcher writes it.
func (d *Dir) Acquire(jobID string) *TransientFile {
	return &TransientFile{Path: filepath.Join(d.root, transientPrefix+sanitize(jobID))}
}

// Release deletes the file. A file that was never written is not an error.
func (f *TransientFile) Release() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether the file is currently on disk.
func (f *TransientFile) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// Sweep removes transient files older than maxAge left behind by a previous run.
func (d *Dir) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), transientPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
