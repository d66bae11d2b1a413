// Package storage keeps opaque blobs keyed by path in object storage.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists at a key.
var ErrNotFound = errors.New("object not found")

// Blob is stored content with the time it was last written.
type Blob struct {
	Content     []byte
	ContentType string
	ModifiedAt  time.Time
}

// BlobStore reads and writes whole objects.
type BlobStore interface {
	// Put writes content at key, replacing any existing object, and returns
	// the object's new modification time.
	Put(ctx context.Context, key string, content []byte, contentType string) (time.Time, error)
	Get(ctx context.Context, key string) (*Blob, error)
}
