// Package storage abstracts where downloaded asset files live: a local
// directory tree laid out as <library>/<media dir>/<file>, or an
// S3-compatible bucket with the same key shape.
package storage

import (
	"context"
	"crypto/sha256"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/metafusion/metafusion/pkg/errors"
)

// Backend stores and enumerates asset files by slash-separated path.
type Backend interface {
	// Put writes data at path, creating parent directories or key
	// prefixes as needed. It returns false when the stored content is
	// already byte-identical and the write was skipped.
	Put(ctx context.Context, path string, data []byte) (bool, error)

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the object at path. Deleting an absent path is
	// not an error.
	Delete(ctx context.Context, path string) error

	// List returns every object path under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Local is a filesystem Backend rooted at a single directory. Writes go
// through a temp file and rename so a crash never leaves a truncated
// image behind.
type Local struct {
	root string
}

// NewLocal creates a Local backend rooted at dir.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, errors.NewValidationError("dir", dir, "asset root is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapIO("mkdir", dir, err)
	}
	return &Local{root: dir}, nil
}

// Root returns the backend's root directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) abs(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

// Put writes data at path. An existing file with the same checksum is
// left untouched, preserving its modification time.
func (l *Local) Put(_ context.Context, path string, data []byte) (bool, error) {
	target := l.abs(path)

	if existing, err := os.ReadFile(target); err == nil {
		if sha256.Sum256(existing) == sha256.Sum256(data) {
			return false, nil
		}
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, errors.WrapIO("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp*")
	if err != nil {
		return false, errors.WrapIO("create", target, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return false, errors.WrapIO("write", target, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return false, errors.WrapIO("write", target, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return false, errors.WrapIO("chmod", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return false, errors.WrapIO("rename", target, err)
	}
	return true, nil
}

// Exists reports whether a regular file exists at path.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(l.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WrapIO("stat", l.abs(path), err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the file at path and prunes its directory if that left
// it empty.
func (l *Local) Delete(_ context.Context, path string) error {
	target := l.abs(path)
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapIO("delete", target, err)
	}

	// Best effort; fails (and is ignored) when the directory still has files.
	dir := filepath.Dir(target)
	if dir != l.root {
		_ = os.Remove(dir)
	}
	return nil
}

// List returns every file path under prefix, slash-separated and
// relative to the root.
func (l *Local) List(_ context.Context, prefix string) ([]string, error) {
	start := l.root
	if prefix != "" {
		start = l.abs(prefix)
	}
	if _, err := os.Stat(start); os.IsNotExist(err) {
		return nil, nil
	}

	var paths []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.WrapIO("list", start, err)
	}
	return paths, nil
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp")
}
