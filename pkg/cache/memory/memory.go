// Package memory provides a bounded in-process cache.Store. Entries beyond
// the capacity are evicted least-recently-used first.
package memory

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pario-ai/sxsearch/pkg/cache"
	"github.com/pario-ai/sxsearch/pkg/models"
)

// DefaultEntries is the capacity used when none is given.
const DefaultEntries = 1000

// Store is an LRU-bounded cache.Store.
type Store struct {
	entries *lru.Cache[string, cache.Entry]
	now     func() time.Time
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ cache.Store = (*Store)(nil)

// New creates a Store holding at most size entries. now may be nil.
func New(size int, now func() time.Time) *Store {
	if size <= 0 {
		size = DefaultEntries
	}
	if now == nil {
		now = time.Now
	}
	entries, _ := lru.New[string, cache.Entry](size)
	return &Store{entries: entries, now: now}
}

// Read returns the entry for key, or cache.ErrNotFound.
func (s *Store) Read(_ context.Context, key string) (cache.Entry, error) {
	e, ok := s.entries.Get(key)
	if !ok {
		s.misses.Add(1)
		return cache.Entry{}, cache.ErrNotFound
	}
	s.hits.Add(1)
	// Hand out a copy so callers cannot mutate the stored payload.
	e.Payload = append([]byte(nil), e.Payload...)
	return e, nil
}

// Write stores a copy of payload under key.
func (s *Store) Write(_ context.Context, key string, payload []byte) error {
	s.entries.Add(key, cache.Entry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		WrittenAt: s.now(),
	})
	return nil
}

// Delete removes entries whose key starts with prefix.
func (s *Store) Delete(_ context.Context, prefix string) (int64, error) {
	var n int64
	for _, k := range s.entries.Keys() {
		if strings.HasPrefix(k, prefix) && s.entries.Remove(k) {
			n++
		}
	}
	return n, nil
}

// Prune removes entries written more than olderThan ago.
func (s *Store) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	var n int64
	for _, k := range s.entries.Keys() {
		e, ok := s.entries.Peek(k)
		if ok && e.WrittenAt.Before(cutoff) && s.entries.Remove(k) {
			n++
		}
	}
	return n, nil
}

// Stats returns cache performance metrics.
func (s *Store) Stats(context.Context) (models.CacheStats, error) {
	return models.CacheStats{
		Entries: int64(s.entries.Len()),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
