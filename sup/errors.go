package sup

import (
	"errors"
	"fmt"
	"strings"
)

// StartupError aborts minit before the supervise loop is reached.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup failed at %s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// LoopError is one failed supervise-loop iteration. It is logged and the loop
// carries on.
type LoopError struct {
	Op  string
	Err error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LoopError) Unwrap() error { return e.Err }

// SpawnError reports a child that was forked but never reached its command.
type SpawnError struct {
	Argv   []string
	Code   int
	Reason string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %s", strings.Join(e.Argv, " "), e.Reason)
}

// ExitCode maps an error returned by Supervisor.Run to minit's exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *SpawnError
	if errors.As(err, &se) && se.Code > 0 {
		return se.Code
	}
	return 1
}
