package services

import (
	"bytes"
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
	"github.com/custodia-labs/mahuta/internal/metrics"
)

// Ensure CachingStorage implements the interface.
var _ driven.StorageBackend = (*CachingStorage)(nil)

// CachingStorage keeps recently written and read payloads in an LRU keyed
// by content id. Content ids name immutable payloads, so entries never go
// stale.
type CachingStorage struct {
	driven.StorageBackend
	cache *lru.Cache[string, []byte]
}

// NewCachingStorage wraps backend with a cache of size payloads.
func NewCachingStorage(backend driven.StorageBackend, size int) (*CachingStorage, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create payload cache: %w", err)
	}
	return &CachingStorage{StorageBackend: backend, cache: cache}, nil
}

// Write stores data and caches it under the returned id.
func (c *CachingStorage) Write(ctx context.Context, data []byte) (string, error) {
	cid, err := c.StorageBackend.Write(ctx, data)
	if err != nil {
		return "", err
	}
	c.cache.Add(cid, bytes.Clone(data))
	return cid, nil
}

// Read serves cid from the cache, falling back to the wrapped backend.
func (c *CachingStorage) Read(ctx context.Context, cid string) ([]byte, error) {
	if data, ok := c.cache.Get(cid); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return bytes.Clone(data), nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	data, err := c.StorageBackend.Read(ctx, cid)
	if err != nil {
		return nil, err
	}
	c.cache.Add(cid, bytes.Clone(data))
	return data, nil
}

// Len returns the number of cached payloads.
func (c *CachingStorage) Len() int {
	return c.cache.Len()
}
