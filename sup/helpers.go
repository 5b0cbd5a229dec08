package sup

import (
	"fmt"

	"github.com/Nanite-Factory-Games/minit/lib"
	"golang.org/x/sys/unix"
)

func signalName(sig unix.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}

func describeStatus(ws unix.WaitStatus) string {
	switch {
	case ws.Exited():
		return fmt.Sprintf("exit status %d", ws.ExitStatus())
	case ws.Signaled():
		if ws.CoreDump() {
			return fmt.Sprintf("killed by %s, core dumped", signalName(ws.Signal()))
		}
		return "killed by " + signalName(ws.Signal())
	case ws.Stopped():
		return "stopped by " + signalName(ws.StopSignal())
	case ws.Continued():
		return "continued"
	}
	return fmt.Sprintf("status %#x", uint32(ws))
}

// waitPID blocks until pid has terminated and collects it.
func waitPID(pid int) unix.WaitStatus {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err != unix.EINTR {
			return ws
		}
	}
}

func forwardSignal(pid int, sig unix.Signal) error {
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("kill %d %s: %w", pid, signalName(sig), err)
	}
	lib.LogTrace("Forwarded %s to %d", signalName(sig), pid)
	return nil
}
