package services

import (
	"errors"
	"fmt"
)

// ErrProductNotFound is returned when no live product matches the ID.
var ErrProductNotFound = errors.New("product not found")

// StorageError wraps a blob store failure during create or update.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError wraps a repository failure after validation passed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s product: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
