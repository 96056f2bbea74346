// Package storage keeps uploaded product images in a blob store addressed by path.
package storage

import (
	"context"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Storage is a blob store addressed by slash-separated paths.
type Storage interface {
	// Put writes data under folder and returns the generated path.
	Put(ctx context.Context, folder string, data []byte) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error
}

// objectPath builds "<folder>/<uuid><ext>", the extension sniffed from data.
func objectPath(folder string, data []byte) (string, string) {
	mtype := mimetype.Detect(data)
	return path.Join(folder, uuid.NewString()+mtype.Extension()), mtype.String()
}
