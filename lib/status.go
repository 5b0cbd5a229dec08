package lib

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ProcStatus is the subset of /proc/<pid>/status minit cares about.
type ProcStatus struct {
	PID    int
	PPID   int
	State  string // single letter: R, S, D, Z, T ...
	NSpid  []int  // pid as seen from each nested pid namespace, outermost first
	CapEff uint64 // effective capability set
}

func ReadProcStatus(pid int) (*ProcStatus, error) {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return nil, err
	}
	return parseProcStatus(string(data))
}

func parseProcStatus(data string) (*ProcStatus, error) {
	st := &ProcStatus{}

	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		var err error
		switch fields[0] {
		case "State:":
			st.State = fields[1]
		case "Pid:":
			st.PID, err = strconv.Atoi(fields[1])
		case "PPid:":
			st.PPID, err = strconv.Atoi(fields[1])
		case "NSpid:":
			for _, f := range fields[1:] {
				n, perr := strconv.Atoi(f)
				if perr != nil {
					err = perr
					break
				}
				st.NSpid = append(st.NSpid, n)
			}
		case "CapEff:":
			st.CapEff, err = strconv.ParseUint(fields[1], 16, 64)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", line, err)
		}
	}

	if st.PID == 0 {
		return nil, fmt.Errorf("status has no Pid field")
	}
	return st, nil
}

// HasCap reports whether capability c is in the effective set.
func (p *ProcStatus) HasCap(c int) bool {
	return c >= 0 && c < 64 && p.CapEff&(1<<uint(c)) != 0
}

// CheckCapability warns when this process lacks capability c, which what
// needs. It returns false only when the capability is known to be missing.
func CheckCapability(c int, what string) bool {
	st, err := ReadProcStatus(os.Getpid())
	if err != nil {
		LogDebug("failed to read own capabilities: %v", err)
		return true
	}
	if st.HasCap(c) {
		return true
	}
	LogWarn("Missing capability %d needed to %s", c, what)
	return false
}

// SetChildSubreaper makes orphaned descendants reparent to this process
// instead of to PID 1.
func SetChildSubreaper() error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("PR_SET_CHILD_SUBREAPER: %w", err)
	}
	return nil
}

func IsChildSubreaper() (bool, error) {
	var flag int32
	if err := unix.Prctl(unix.PR_GET_CHILD_SUBREAPER, uintptr(unsafe.Pointer(&flag)), 0, 0, 0); err != nil {
		return false, fmt.Errorf("PR_GET_CHILD_SUBREAPER: %w", err)
	}
	return flag != 0, nil
}

// CheckReaper warns when orphans will not reparent to us: we are neither
// PID 1 nor a registered subreaper.
func CheckReaper() {
	if os.Getpid() == 1 {
		return
	}

	sub, err := IsChildSubreaper()
	if err != nil {
		LogDebug("failed to read child subreaper attribute: %v", err)
	} else if sub {
		return
	}

	LogWarn("minit is not PID 1 and not a child subreaper: orphaned descendants will not be reaped by it")
}
