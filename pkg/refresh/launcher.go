package refresh

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Launcher starts a background refresh and returns the pid that owns it.
// run is the in-process body of the refresh; launchers that start another
// process use job.Spec instead.
type Launcher interface {
	Launch(job Job, run func(context.Context) error) (pid int, err error)
}

// InlineLauncher runs refreshes as goroutines of the current process.
type InlineLauncher struct {
	wg sync.WaitGroup
}

// Launch starts run in a goroutine. The refresh is not tied to any caller's
// context and runs to completion.
func (l *InlineLauncher) Launch(_ Job, run func(context.Context) error) (int, error) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_ = run(context.Background())
	}()
	return os.Getpid(), nil
}

// Wait blocks until every launched refresh has finished.
func (l *InlineLauncher) Wait() {
	l.wg.Wait()
}

// ProcessLauncher runs each refresh as a detached child process, typically
// the current executable invoked with a hidden worker command.
type ProcessLauncher struct {
	// Executable is the program to run. Defaults to os.Executable().
	Executable string
	// Args builds the command line from the job spec.
	Args func(spec []byte) []string
	// Env is appended to the current environment.
	Env []string
}

// Launch starts the worker process and returns its pid without waiting.
func (l *ProcessLauncher) Launch(job Job, _ func(context.Context) error) (int, error) {
	if len(job.Spec) == 0 {
		return 0, fmt.Errorf("job %s cannot run out of process: no spec", job.name())
	}
	if l.Args == nil {
		return 0, fmt.Errorf("process launcher has no argument builder")
	}

	exe := l.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return 0, fmt.Errorf("locate executable: %w", err)
		}
	}

	cmd := exec.Command(exe, l.Args(job.Spec)...)
	cmd.Env = append(os.Environ(), l.Env...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start worker: %w", err)
	}
	pid := cmd.Process.Pid

	// Reap the child if this process outlives it, so its pid stops
	// looking alive.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}
