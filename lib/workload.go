package lib

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Shell-style exit codes for a workload that could not be started.
const (
	ExitCannotExecute = 126
	ExitNotFound      = 127
)

// ExecWorkload replaces the current process image with argv. It only
// returns on failure; a nil error is never returned.
func ExecWorkload(argv, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("exec: %w", ErrNoCommand)
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("exec %s: %w", argv[0], err)
	}

	err = unix.Exec(path, argv, env)
	return fmt.Errorf("exec %s: %w", path, err)
}

// ExecExitCode maps an ExecWorkload failure to the status a shell would
// report for it.
func ExecExitCode(err error) int {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ExitNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, unix.ENOEXEC):
		return ExitCannotExecute
	}
	return 1
}
