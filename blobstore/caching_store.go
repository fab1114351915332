package blobstore

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CachingStore wraps a Store with a read-through blob cache. Snapshot
// blobs are immutable once written, so cached entries stay valid until
// the same name is overwritten or deleted through this store.
//
// Concurrent Gets for the same uncached blob are collapsed into a
// single backend read.
type CachingStore struct {
	inner Store

	mu    sync.RWMutex
	cache map[string][]byte
	size  int64
	limit int64

	group singleflight.Group
}

// NewCachingStore creates a CachingStore holding at most maxBytes of
// blob data. maxBytes <= 0 means unbounded.
func NewCachingStore(inner Store, maxBytes int64) *CachingStore {
	return &CachingStore{
		inner: inner,
		cache: make(map[string][]byte),
		limit: maxBytes,
	}
}

// Put writes through to the backend and refreshes the cache entry.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.inner.Put(ctx, name, data); err != nil {
		s.invalidate(name)
		return err
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	s.store(name, copied)
	return nil
}

// Get returns the cached blob or reads it through from the backend.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		data, err := s.inner.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		s.store(name, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	data = v.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Delete removes the blob from the backend and the cache.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List delegates to the backend.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) store(name string, data []byte) {
	if s.limit > 0 && int64(len(data)) > s.limit {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.cache[name]; ok {
		s.size -= int64(len(old))
	}
	// Evict arbitrary entries until the new blob fits. Snapshot
	// working sets are tiny, so no recency bookkeeping is kept.
	for s.limit > 0 && s.size+int64(len(data)) > s.limit {
		for k, v := range s.cache {
			delete(s.cache, k)
			s.size -= int64(len(v))
			break
		}
	}
	s.cache[name] = data
	s.size += int64(len(data))
}

func (s *CachingStore) invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.cache[name]; ok {
		s.size -= int64(len(old))
		delete(s.cache, name)
	}
}
