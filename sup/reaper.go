package sup

import (
	"errors"
	"fmt"

	"github.com/Nanite-Factory-Games/minit/lib"
	"golang.org/x/sys/unix"
)

var ErrReap = errors.New("reap failed")

type Reaped struct {
	PID    int
	Status unix.WaitStatus
}

// ReapResult lists the children collected by one sweep, in reap order.
type ReapResult []Reaped

func (r ReapResult) Find(pid int) (Reaped, bool) {
	for _, c := range r {
		if c.PID == pid {
			return c, true
		}
	}
	return Reaped{}, false
}

func (r ReapResult) Contains(pid int) bool {
	_, ok := r.Find(pid)
	return ok
}

func (r ReapResult) PIDs() []int {
	pids := make([]int, 0, len(r))
	for _, c := range r {
		pids = append(pids, c.PID)
	}
	return pids
}

type waitFunc func(status *unix.WaitStatus) (int, error)

func waitAnyChild(status *unix.WaitStatus) (int, error) {
	return unix.Wait4(-1, status, unix.WNOHANG, nil)
}

// ReapAvailable collects every child that has already terminated without
// blocking. On a wait failure the children reaped so far are returned along
// with the error.
func ReapAvailable() (ReapResult, error) {
	return reapWith(waitAnyChild)
}

func reapWith(wait waitFunc) (ReapResult, error) {
	var reaped ReapResult
	for {
		var status unix.WaitStatus
		pid, err := wait(&status)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			// nothing left to wait for; the caller keeps polling regardless
			return reaped, nil
		case err != nil:
			return reaped, fmt.Errorf("%w: wait4: %w", ErrReap, err)
		case pid <= 0:
			return reaped, nil
		}

		if status.Exited() || status.Signaled() {
			lib.LogDebug("Reaped %d (%s)", pid, describeStatus(status))
			reaped = append(reaped, Reaped{PID: pid, Status: status})
			continue
		}
		lib.LogInfo("Saw unknown status %s for pid %d", describeStatus(status), pid)
	}
}
