package storage

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is a bounded in-process BlobStore used when no object storage
// is configured. Least recently used objects are evicted past its size.
type MemoryStore struct {
	cache *lru.Cache[string, Blob]
	now   func() time.Time
}

// NewMemoryStore creates a store holding at most size objects.
func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, Blob](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, content []byte, contentType string) (time.Time, error) {
	key = normalizeKey(key)
	if key == "" {
		return time.Time{}, fmt.Errorf("object key is required")
	}
	modified := m.now().UTC()
	m.cache.Add(key, Blob{
		Content:     append([]byte(nil), content...),
		ContentType: contentType,
		ModifiedAt:  modified,
	})
	return modified, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Blob, error) {
	blob, ok := m.cache.Get(normalizeKey(key))
	if !ok {
		return nil, ErrNotFound
	}
	blob.Content = append([]byte(nil), blob.Content...)
	return &blob, nil
}

var _ BlobStore = (*MemoryStore)(nil)
