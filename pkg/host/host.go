// Package host integrates with the desktop: revealing files in the file
// manager.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pario-ai/sxsearch/pkg/errs"
)

// Opener starts an external command.
type Opener interface {
	Start(name string, args ...string) error
}

// ExecOpener runs commands with os/exec without waiting for them.
type ExecOpener struct{}

// Start implements Opener.
func (ExecOpener) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

// RevealCommand returns the command that shows path in the file manager.
func RevealCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{"-R", path}
	case "windows":
		return "explorer", []string{"/select," + path}
	default:
		return "xdg-open", []string{filepath.Dir(path)}
	}
}

// Reveal shows path in the platform's file manager.
func Reveal(o Opener, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.NotFound("reveal", path)
		}
		return errs.IO("reveal", err)
	}
	name, args := RevealCommand(runtime.GOOS, path)
	if err := o.Start(name, args...); err != nil {
		return fmt.Errorf("reveal %s: %w", path, err)
	}
	return nil
}
