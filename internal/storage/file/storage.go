package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrNotFound is returned when the requested file does not exist.
var ErrNotFound = fs.ErrNotExist

// Storage provides file access for sources and cache entries.
// All paths are resolved against an optional base directory.
type Storage struct {
	fs afero.Fs
}

// NewStorage creates a new Storage over fsys. When basePath is non-empty
// every path is resolved below it and cannot escape it.
func NewStorage(fsys afero.Fs, basePath string) *Storage {
	if basePath != "" {
		fsys = afero.NewBasePathFs(fsys, basePath)
	}

	return &Storage{fs: fsys}
}

// NewOsStorage creates a Storage backed by the real filesystem.
func NewOsStorage(basePath string) *Storage {
	return NewStorage(afero.NewOsFs(), basePath)
}

// Fs exposes the underlying filesystem.
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// Exists reports whether path exists.
func (s *Storage) Exists(path string) (bool, error) {
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return ok, nil
}

// Open opens the file for reading. A missing file yields an error
// matching ErrNotFound.
func (s *Storage) Open(path string) (io.ReadCloser, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return f, nil
}

// ReadFile reads the whole file.
func (s *Storage) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// MkdirAll creates dir and any missing parents.
func (s *Storage) MkdirAll(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}

	if err := s.fs.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}

// Save writes src to path atomically: the data goes to a temporary file in
// the same directory which is then renamed over path. Readers never observe
// a partially written file.
func (s *Storage) Save(path string, src io.Reader) error {
	dir := filepath.Dir(path)
	if err := s.MkdirAll(dir); err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := filepath.Join(dir, filepath.Base(tmp.Name()))

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to close file %s: %w", path, err)
	}

	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to move file into place %s: %w", path, err)
	}

	return nil
}

// Copy copies src to dst atomically.
func (s *Storage) Copy(src, dst string) error {
	in, err := s.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return s.Save(dst, in)
}

// Delete removes the file at path.
func (s *Storage) Delete(path string) error {
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	return nil
}

// RemoveGlob deletes every file matching pattern and returns how many were
// removed. Files that vanish concurrently are not counted as errors.
func (s *Storage) RemoveGlob(pattern string) (int, error) {
	matches, err := afero.Glob(s.fs, pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}

	removed := 0
	for _, m := range matches {
		if err := s.fs.Remove(m); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("failed to delete %s: %w", m, err)
		}
		removed++
	}

	return removed, nil
}
