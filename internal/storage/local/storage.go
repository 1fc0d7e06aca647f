package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/buzzzzx/shanbor/internal/storage"
)

// Storage reads overlay files below a base directory of an afero filesystem.
// Paths cannot escape the base directory.
type Storage struct {
	fs afero.Fs
}

// NewStorage creates a Storage rooted at baseDir. An empty baseDir uses fs as is.
func NewStorage(fsys afero.Fs, baseDir string) *Storage {
	if baseDir != "" {
		fsys = afero.NewBasePathFs(fsys, baseDir)
	}

	return &Storage{fs: fsys}
}

// Load opens the file at path.
func (s *Storage) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory: %w", path, storage.ErrNotFound)
	}

	return f, nil
}
