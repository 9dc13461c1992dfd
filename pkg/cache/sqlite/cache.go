package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/sxsearch/pkg/cache"
	"github.com/pario-ai/sxsearch/pkg/models"
)

// Cache is a cache.Store backed by SQLite. It is safe for concurrent use by
// several processes sharing the same database file.
type Cache struct {
	db     *sql.DB
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

var _ cache.Store = (*Cache)(nil)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	written_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_written ON cache_entries(written_at);
`

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New opens (creating if needed) the cache database at dbPath.
func New(dbPath string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	c := &Cache{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Read returns the entry stored under key, or cache.ErrNotFound.
func (c *Cache) Read(ctx context.Context, key string) (cache.Entry, error) {
	var (
		payload   []byte
		writtenAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, written_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &writtenAt)

	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return cache.Entry{}, cache.ErrNotFound
	}
	if err != nil {
		c.misses.Add(1)
		return cache.Entry{}, fmt.Errorf("cache read: %w", err)
	}

	c.hits.Add(1)
	return cache.Entry{Key: key, Payload: payload, WrittenAt: time.Unix(0, writtenAt)}, nil
}

// Write stores payload under key. The row is replaced in a single statement.
func (c *Cache) Write(ctx context.Context, key string, payload []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, payload, written_at) VALUES (?, ?, ?)`,
		key, payload, c.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Delete removes entries whose key starts with prefix.
func (c *Cache) Delete(ctx context.Context, prefix string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	upper, bounded := prefixEnd(prefix)
	switch {
	case prefix == "":
		res, err = c.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	case bounded:
		res, err = c.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE key >= ? AND key < ?`, prefix, upper)
	default:
		res, err = c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key >= ?`, prefix)
	}
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	return res.RowsAffected()
}

// prefixEnd returns the smallest string greater than every string starting
// with prefix, comparing bytes as SQLite's BINARY collation does. It reports
// false when no such bound exists.
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// Prune removes entries written more than olderThan ago.
func (c *Cache) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := c.now().Add(-olderThan).UnixNano()
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE written_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
