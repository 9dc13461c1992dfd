package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/pario-ai/sxsearch/pkg/models"
)

// MemoryRegistry is an in-process Registry. Alive decides whether a
// recorded pid still counts as running; it defaults to ProcessAlive.
type MemoryRegistry struct {
	mu      sync.Mutex
	markers map[string]models.JobMarker
	Alive   func(pid int) bool
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{markers: make(map[string]models.JobMarker), Alive: ProcessAlive}
}

// Mark records name as owned by pid without starting anything.
func (r *MemoryRegistry) Mark(name string, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[name] = models.JobMarker{Name: name, PID: pid, StartedAt: time.Now().UTC()}
}

func (r *MemoryRegistry) live(name string) bool {
	m, ok := r.markers[name]
	if !ok {
		return false
	}
	if r.Alive(m.PID) {
		return true
	}
	delete(r.markers, name)
	return false
}

// Claim registers name and calls start unless a live job already holds it.
func (r *MemoryRegistry) Claim(name string, start StartFunc) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live(name) {
		return false, nil
	}
	pid, err := start()
	if err != nil {
		return false, err
	}
	r.markers[name] = models.JobMarker{Name: name, PID: pid, StartedAt: time.Now().UTC()}
	return true, nil
}

// Release clears name.
func (r *MemoryRegistry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, name)
	return nil
}

// Running reports whether a live job is registered under name.
func (r *MemoryRegistry) Running(name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live(name), nil
}

// List returns live markers sorted by name.
func (r *MemoryRegistry) List() ([]models.JobMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.JobMarker
	for name := range r.markers {
		if r.live(name) {
			out = append(out, r.markers[name])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
