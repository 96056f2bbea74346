package storage

import (
	"context"
	"fmt"
)

// Staged is a blob written ahead of a database write. Unless Keep is called,
// Release deletes it again.
type Staged struct {
	store Storage
	path  string
	kept  bool
}

// Stage writes data under folder. A nil data slice stages nothing and
// returns an empty Staged whose Release is a no-op.
func Stage(ctx context.Context, store Storage, folder string, data []byte) (*Staged, error) {
	if data == nil {
		return &Staged{}, nil
	}
	p, err := store.Put(ctx, folder, data)
	if err != nil {
		return nil, err
	}
	return &Staged{store: store, path: p}, nil
}

// Path returns the staged path, or "" when nothing was staged.
func (s *Staged) Path() string {
	return s.path
}

// Keep marks the blob as owned by a persisted record.
func (s *Staged) Keep() {
	s.kept = true
}

// Release deletes the blob unless it was kept. A blob that is already gone
// counts as released. Errors name the blob path so callers can log the
// orphan.
func (s *Staged) Release(ctx context.Context) error {
	if s.kept || s.path == "" {
		return nil
	}
	if err := s.store.Delete(ctx, s.path); err != nil {
		return fmt.Errorf("compensation for %s: %w", s.path, err)
	}
	return nil
}
