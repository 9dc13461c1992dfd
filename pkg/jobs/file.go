package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/pario-ai/sxsearch/pkg/models"
)

const (
	lockName     = ".registry.lock"
	markerSuffix = ".job"
)

// FileRegistry keeps one marker file per running job in a directory. Every
// check-and-set happens under an exclusive file lock, which makes Claim
// atomic across processes sharing the directory.
type FileRegistry struct {
	dir   string
	mu    sync.Mutex
	alive func(pid int) bool
	now   func() time.Time
}

var _ Registry = (*FileRegistry)(nil)

// NewFileRegistry creates a registry rooted at dir.
func NewFileRegistry(dir string) *FileRegistry {
	return &FileRegistry{dir: dir, alive: ProcessAlive, now: time.Now}
}

// Dir returns the marker directory.
func (r *FileRegistry) Dir() string {
	return r.dir
}

// lock serializes goroutines with a mutex and processes with flock. A new
// flock handle is used every time because a held handle re-locks as a no-op.
func (r *FileRegistry) lock() (func(), error) {
	r.mu.Lock()
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	fl := flock.New(filepath.Join(r.dir, lockName))
	if err := fl.Lock(); err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("lock job registry: %w", err)
	}
	return func() {
		_ = fl.Unlock()
		r.mu.Unlock()
	}, nil
}

func (r *FileRegistry) markerPath(name string) string {
	sum := sha256.Sum256([]byte(name))
	return filepath.Join(r.dir, hex.EncodeToString(sum[:8])+markerSuffix)
}

func readMarker(path string) (models.JobMarker, error) {
	var m models.JobMarker
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("invalid job marker %s: %w", path, err)
	}
	return m, nil
}

// live returns the marker for name if its owner is alive. Dead or corrupt
// markers are removed. Must be called with the lock held.
func (r *FileRegistry) live(name string) (models.JobMarker, bool, error) {
	path := r.markerPath(name)
	m, err := readMarker(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, false, nil
	}
	if err == nil && r.alive(m.PID) {
		return m, true, nil
	}
	if err != nil {
		slog.Warn("discarding unreadable job marker", slog.String("path", path), slog.String("error", err.Error()))
	} else {
		slog.Info("discarding job marker of dead process", slog.String("job", name), slog.Int("pid", m.PID))
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return m, false, fmt.Errorf("remove stale job marker: %w", rmErr)
	}
	return m, false, nil
}

// Claim registers name and calls start unless a live job already holds it.
func (r *FileRegistry) Claim(name string, start StartFunc) (bool, error) {
	unlock, err := r.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	if _, running, err := r.live(name); err != nil || running {
		return false, err
	}

	pid, err := start()
	if err != nil {
		return false, fmt.Errorf("start job %s: %w", name, err)
	}

	data, err := json.Marshal(models.JobMarker{Name: name, PID: pid, StartedAt: r.now().UTC()})
	if err != nil {
		return true, err
	}
	if err := os.WriteFile(r.markerPath(name), data, 0o644); err != nil {
		return true, fmt.Errorf("write job marker: %w", err)
	}
	return true, nil
}

// Release removes the marker for name.
func (r *FileRegistry) Release(name string) error {
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(r.markerPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release job %s: %w", name, err)
	}
	return nil
}

// Running reports whether a live job is registered under name.
func (r *FileRegistry) Running(name string) (bool, error) {
	unlock, err := r.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	_, running, err := r.live(name)
	return running, err
}

// List returns all live markers, cleaning up dead ones on the way.
func (r *FileRegistry) List() ([]models.JobMarker, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var markers []models.JobMarker
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), markerSuffix) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		m, err := readMarker(path)
		if err == nil && r.alive(m.PID) {
			markers = append(markers, m)
			continue
		}
		_ = os.Remove(path)
	}
	return markers, nil
}
