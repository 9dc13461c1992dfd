// Package jobs tracks which background refresh jobs are currently running so
// that at most one refresh per job name is in flight, even across processes.
package jobs

import (
	"errors"
	"os"
	"syscall"

	"github.com/pario-ai/sxsearch/pkg/models"
)

// StartFunc starts a job and returns the pid of the process that owns it.
// It is called while the registry holds its lock.
type StartFunc func() (pid int, err error)

// Registry is the set of job names with a refresh in flight. A marker is
// only trusted while its owning process is alive.
type Registry interface {
	// Claim marks name as running and calls start, unless a live job with
	// that name is already registered. It reports whether start was called.
	Claim(name string, start StartFunc) (bool, error)
	// Release clears the marker for name. Releasing an unknown name is a no-op.
	Release(name string) error
	// Running reports whether a live job is registered under name.
	Running(name string) (bool, error)
	// List returns the live markers.
	List() ([]models.JobMarker, error)
}

// ProcessAlive reports whether a process with pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so probe with signal 0.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
