// Package cache defines the freshness-aware key/value store used to hold
// search results and the site catalog between invocations.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/pario-ai/sxsearch/pkg/models"
)

// ErrNotFound is returned by Read when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Entry is a cached payload with the time it was written.
type Entry struct {
	Key       string
	Payload   []byte
	WrittenAt time.Time
}

// Age returns how long ago the entry was written, relative to now.
func (e Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.WrittenAt)
	if age < 0 {
		return 0
	}
	return age
}

// FreshFor reports whether the entry is no older than maxAge at now.
func (e Entry) FreshFor(maxAge time.Duration, now time.Time) bool {
	return e.Age(now) <= maxAge
}

// Store is a durable key/value store with write timestamps. Writes replace
// payload and timestamp together; readers never see a partial write.
type Store interface {
	// Read returns the entry for key, or ErrNotFound.
	Read(ctx context.Context, key string) (Entry, error)
	// Write stores payload under key, stamped with the current time.
	Write(ctx context.Context, key string, payload []byte) error
	// Delete removes every entry whose key starts with prefix and returns
	// the number removed. An empty prefix removes everything.
	Delete(ctx context.Context, prefix string) (int64, error)
	// Prune removes entries written more than olderThan ago.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	// Stats returns entry count and hit/miss counters.
	Stats(ctx context.Context) (models.CacheStats, error)
	// Close releases resources.
	Close() error
}
