package storage

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

// FSStorage stores blobs on an afero filesystem.
type FSStorage struct {
	fs afero.Fs
}

// NewFSStorage returns a Storage backed by fs.
func NewFSStorage(fs afero.Fs) *FSStorage {
	return &FSStorage{fs: fs}
}

// NewLocalStorage returns an FSStorage rooted at dir on the OS filesystem.
func NewLocalStorage(dir string) (*FSStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", dir, err)
	}
	return NewFSStorage(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func (s *FSStorage) Put(_ context.Context, folder string, data []byte) (string, error) {
	name, _ := objectPath(folder, data)
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	if err := afero.WriteFile(s.fs, name, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return name, nil
}

func (s *FSStorage) Exists(_ context.Context, name string) (bool, error) {
	ok, err := afero.Exists(s.fs, name)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return ok, nil
}

func (s *FSStorage) Delete(_ context.Context, name string) error {
	if err := s.fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}
