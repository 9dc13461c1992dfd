// Package quota keeps a local ledger of Stack Exchange API calls and the
// quota figures each response reported.
package quota

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/sxsearch/pkg/models"
)

// Ledger records and queries API quota usage.
type Ledger interface {
	// Record stores the quota figures of one API response.
	Record(ctx context.Context, rec models.QuotaRecord) error
	// Latest returns the most recent record, or nil when the ledger is empty.
	Latest(ctx context.Context) (*models.QuotaRecord, error)
	// Summary aggregates calls per endpoint and UTC day since a given time.
	Summary(ctx context.Context, since time.Time) ([]models.QuotaSummary, error)
	// Cleanup deletes records older than the cutoff and returns how many went.
	Cleanup(ctx context.Context, before time.Time) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteLedger implements Ledger with a SQLite database.
type SQLiteLedger struct {
	db *sql.DB
}

var _ Ledger = (*SQLiteLedger)(nil)

const createTable = `
CREATE TABLE IF NOT EXISTS quota_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint TEXT NOT NULL,
	site TEXT NOT NULL DEFAULT '',
	quota_remaining INTEGER NOT NULL,
	quota_max INTEGER NOT NULL,
	backoff INTEGER NOT NULL DEFAULT 0,
	day TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quota_time ON quota_records(created_at);
`

// New opens the ledger at dbPath and runs auto-migration.
func New(dbPath string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open quota db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate quota db: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// Record stores a quota record. A zero CreatedAt is stamped with the
// current time.
func (l *SQLiteLedger) Record(ctx context.Context, rec models.QuotaRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	at := rec.CreatedAt.UTC()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO quota_records (endpoint, site, quota_remaining, quota_max, backoff, day, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Endpoint, rec.Site, rec.Remaining, rec.Max, rec.Backoff, at.Format(time.DateOnly), at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record quota: %w", err)
	}
	return nil
}

// Latest returns the most recent record.
func (l *SQLiteLedger) Latest(ctx context.Context) (*models.QuotaRecord, error) {
	var (
		r  models.QuotaRecord
		ts int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, endpoint, site, quota_remaining, quota_max, backoff, created_at
		 FROM quota_records ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&r.ID, &r.Endpoint, &r.Site, &r.Remaining, &r.Max, &r.Backoff, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest quota: %w", err)
	}
	r.CreatedAt = time.Unix(0, ts).UTC()
	return &r, nil
}

// Summary returns calls grouped by endpoint and day, newest day first.
func (l *SQLiteLedger) Summary(ctx context.Context, since time.Time) ([]models.QuotaSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT endpoint, day, COUNT(*), MIN(quota_remaining)
		 FROM quota_records WHERE created_at >= ?
		 GROUP BY endpoint, day ORDER BY day DESC, endpoint`,
		since.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("quota summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.QuotaSummary
	for rows.Next() {
		var s models.QuotaSummary
		if err := rows.Scan(&s.Endpoint, &s.Day, &s.Requests, &s.MinRemaining); err != nil {
			return nil, fmt.Errorf("scan quota summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Cleanup deletes records created before the cutoff.
func (l *SQLiteLedger) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM quota_records WHERE created_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleanup quota: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
