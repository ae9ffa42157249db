// Package blob stores raw file content for the lifecycle engine, either in
// a flat local directory or in a MinIO/S3 bucket.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FSStore keeps each blob as one file in a flat directory.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("blob directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

// Dir returns the blob directory.
func (s *FSStore) Dir() string { return s.dir }

// path resolves a stored name inside the directory. Names are generated by
// the engine, but anything that could leave the directory is refused.
func (s *FSStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// Put streams r to a temp file, fsyncs it and renames it into place, so a
// reader never observes a partial blob.
func (s *FSStore) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	full, err := s.path(name)
	if err != nil {
		return 0, err
	}
	tmp := filepath.Join(s.dir, "."+name+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	size, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("fsync blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("rename blob: %w", err)
	}
	return size, nil
}

// Open returns the blob and its size. A missing blob wraps fs.ErrNotExist.
func (s *FSStore) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	full, err := s.path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, fmt.Errorf("open blob %s: %w", name, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat blob %s: %w", name, err)
	}
	return f, st.Size(), nil
}

// Exists reports whether the blob is present.
func (s *FSStore) Exists(_ context.Context, name string) (bool, error) {
	full, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat blob %s: %w", name, err)
}

// Delete removes the blob. Returns nil if it does not exist.
func (s *FSStore) Delete(_ context.Context, name string) error {
	full, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
