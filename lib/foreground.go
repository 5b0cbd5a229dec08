package lib

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// TTYPath is the controlling terminal of the calling process.
const TTYPath = "/dev/tty"

var ErrForegroundSetup = errors.New("foreground setup failed")

// MakeForeground makes the calling process the leader of a new process group
// and, when there is a controlling terminal, that terminal's foreground group.
//
// It runs on the child side of a spawn, after fork and before exec, on a
// locked OS thread. SIGTTOU is left blocked on that thread; the caller is
// expected to install its final mask right before exec.
func MakeForeground() error {
	return makeForeground(TTYPath)
}

func makeForeground(ttyPath string) error {
	if err := unix.Setpgid(0, 0); err != nil {
		return fmt.Errorf("%w: setpgid: %w", ErrForegroundSetup, err)
	}
	pgrp := unix.Getpgrp()

	// /dev/tty rather than stdin, which may be redirected
	tty, err := os.OpenFile(ttyPath, os.O_RDWR, 0)
	if err != nil {
		LogDebug("failed to open %s: %v", ttyPath, err)
		return nil
	}
	defer tty.Close()

	fd := int(tty.Fd())
	if !term.IsTerminal(fd) {
		LogDebug("%s is not a terminal", ttyPath)
		return nil
	}

	// a background group calling tcsetpgrp gets stopped by SIGTTOU
	if err := BlockSignals(unix.SIGTTOU); err != nil {
		return fmt.Errorf("%w: %w", ErrForegroundSetup, err)
	}

	err = unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgrp)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ENOTTY), errors.Is(err, unix.ENXIO):
		// no tty, or lx-branded zones
		LogDebug("failed to set process in foreground: %v", err)
		return nil
	}
	return fmt.Errorf("%w: tcsetpgrp: %w", ErrForegroundSetup, err)
}
