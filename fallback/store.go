// Package fallback implements the write-local / read-through-remote overlay
// used to page ledger state in on demand. A store looks like a complete
// key/value space to its caller while only materializing the keys actually
// touched: local writes always win, misses are fetched from an injected
// fallback source and cached, and nothing is ever written upstream.
package fallback

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type (
	// FetchFunc retrieves the authoritative value for a key from the
	// fallback source. It may block on network I/O.
	FetchFunc[V any] func(ctx context.Context, key string) (V, error)

	entry[V any] struct {
		value V
		local bool // written through Set, shadows anything the source holds
	}

	// Store is a read-through overlay cache. Each store instance is owned by
	// a single execution invocation; the zero value is not usable, call
	// NewStore.
	Store[V any] struct {
		mu      sync.RWMutex
		entries map[string]entry[V]
		fetch   FetchFunc[V]
		flight  singleflight.Group
	}
)

// NewStore creates a store backed by fetch. A nil fetch makes the store serve
// the zero value for keys never written locally.
func NewStore[V any](fetch FetchFunc[V]) *Store[V] {
	return &Store[V]{
		entries: make(map[string]entry[V]),
		fetch:   fetch,
	}
}

// Get returns the value for key, consulting the local map first and falling
// back to the fetch function on a miss. A fetched value is cached, so each
// key is fetched at most once per store instance; concurrent misses for the
// same key share a single fetch.
func (s *Store[V]) Get(ctx context.Context, key string) (V, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e.value, nil
	}
	if s.fetch == nil {
		var zero V
		return zero, nil
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		// Re-check under the flight: an earlier caller may have cached the
		// key between our miss and this call.
		s.mu.RLock()
		e, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			return e.value, nil
		}
		fetched, err := s.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		// A local write that landed while the fetch was in flight shadows
		// the fetched value and must not be evicted.
		if cur, ok := s.entries[key]; ok {
			return cur.value, nil
		}
		s.entries[key] = entry[V]{value: fetched}
		return fetched, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Set writes the value locally. The write is never transmitted to the
// fallback source and shadows any value the source holds for the key.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, local: true}
	s.mu.Unlock()
}
