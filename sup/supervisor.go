package sup

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Nanite-Factory-Games/minit/lib"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type State int

const (
	StateBootstrapping State = iota
	StateSpawning
	StateSupervising
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateSpawning:
		return "spawning"
	case StateSupervising:
		return "supervising"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type signalSource interface {
	NextSignal() (unix.Signal, error)
}

type spawnFunc func(argv, env []string, mask lib.SignalMask) (int, error)

// Supervisor runs one child and stays alive until that child is gone,
// forwarding every signal to it and reaping anything that gets reparented
// to minit along the way.
type Supervisor struct {
	cfg   *lib.SystemConfig
	gate  *SignalGate
	state State
	argv  []string
	child int
	exit  unix.WaitStatus

	source  signalSource
	spawn   spawnFunc
	reap    func() (ReapResult, error)
	forward func(pid int, sig unix.Signal) error
}

func NewSupervisor(cfg *lib.SystemConfig) *Supervisor {
	gate := NewSignalGate()
	return &Supervisor{
		cfg:     cfg,
		gate:    gate,
		state:   StateBootstrapping,
		source:  gate,
		spawn:   Spawn,
		reap:    ReapAvailable,
		forward: forwardSignal,
	}
}

func (s *Supervisor) State() State { return s.state }

func (s *Supervisor) ChildPID() int { return s.child }

// ExitStatus is the primary child's wait status once the supervisor has
// reached StateTerminated.
func (s *Supervisor) ExitStatus() unix.WaitStatus { return s.exit }

// Run captures the signal mask, arms the signal gate, spawns the child and
// supervises it until it has been reaped. Only startup failures are
// returned; nothing that happens while supervising ends the loop early.
func (s *Supervisor) Run() error {
	defer s.gate.Close()

	if err := s.bootstrap(); err != nil {
		return err
	}
	if err := s.startChild(); err != nil {
		return err
	}
	s.supervise()
	return nil
}

func (s *Supervisor) bootstrap() error {
	s.state = StateBootstrapping

	if _, err := s.gate.CaptureMask(); err != nil {
		return &StartupError{Stage: "capture signal mask", Err: err}
	}
	if err := s.gate.BlockAll(); err != nil {
		return &StartupError{Stage: "block signals", Err: err}
	}

	s.argv = s.cfg.Command()
	if len(s.argv) == 0 {
		return &StartupError{Stage: "resolve command", Err: lib.ErrNoCommand}
	}
	return nil
}

func (s *Supervisor) startChild() error {
	s.state = StateSpawning

	env := s.cfg.Environ(os.Environ())
	pid, err := s.spawn(s.argv, env, s.gate.InitialMask())
	if err != nil {
		return &StartupError{Stage: "spawn child", Err: err}
	}

	s.child = pid
	s.state = StateSupervising
	lib.Logger().WithFields(logrus.Fields{
		"pid":  pid,
		"mask": s.gate.InitialMask().String(),
	}).Infof("Spawned %s", strings.Join(s.argv, " "))
	return nil
}

func (s *Supervisor) supervise() {
	for s.state != StateTerminated {
		if err := s.iterate(); err != nil {
			lib.LogWarn("Unexpected error while supervising: %v", err)
		}
	}
	lib.LogDebug("Primary child %d is gone, leaving the supervise loop", s.child)
}

// iterate waits for and handles exactly one signal.
func (s *Supervisor) iterate() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &LoopError{Op: "handle signal", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	sig, err := s.source.NextSignal()
	if err != nil {
		return &LoopError{Op: "read signal", Err: err}
	}
	return s.dispatch(sig)
}

func (s *Supervisor) dispatch(sig unix.Signal) error {
	switch Classify(sig) {
	case EventChildExit:
		reaped, err := s.reap()
		if c, ok := reaped.Find(s.child); ok {
			s.exit = c.Status
			s.state = StateTerminated
			lib.LogInfo("Primary child %d exited (%s)", c.PID, describeStatus(c.Status))
		}
		if err != nil {
			return &LoopError{Op: "reap children", Err: err}
		}

	case EventSignal:
		if err := s.forward(s.child, sig); err != nil {
			// the child may already be exiting; its SIGCHLD settles it
			lib.LogDebug("Forwarding %s: %v", signalName(sig), err)
		}
	}
	return nil
}

// Spawn forks the child and returns its pid once it has exec'd the command.
//
// Nothing can run between fork and exec in a Go process, so the child is a
// re-exec of minit itself under BootstrapName. It gets the log level, the
// mask to restore and the command on its argv, and fd 3 as a close-on-exec
// status pipe: EOF there means the exec went through, anything else is the
// reason it did not.
func Spawn(argv, env []string, mask lib.SignalMask) (int, error) {
	if len(argv) == 0 {
		return 0, lib.ErrNoCommand
	}

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("exec status pipe: %w", err)
	}
	defer r.Close()

	cmd := &exec.Cmd{
		Path:       "/proc/self/exe",
		Args:       bootstrapArgs(lib.Logger().GetLevel().String(), mask, argv),
		Env:        env,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		ExtraFiles: []*os.File{w},
	}
	err = cmd.Start()
	w.Close()
	if err != nil {
		return 0, fmt.Errorf("fork bootstrap: %w", err)
	}
	return awaitExec(cmd, r, argv)
}

// awaitExec reads the started bootstrap's exec status from r. A child that
// did not make it to its command is collected before returning, so a failed
// spawn never leaves a zombie or a stray process behind.
func awaitExec(cmd *exec.Cmd, r io.Reader, argv []string) (int, error) {
	pid := cmd.Process.Pid
	defer cmd.Process.Release()

	msg, err := io.ReadAll(r)
	if err != nil {
		// the outcome is unknown, so the child must not outlive the spawn
		_ = unix.Kill(pid, unix.SIGKILL)
		waitPID(pid)
		return 0, fmt.Errorf("read exec status of %d: %w", pid, err)
	}
	if len(msg) == 0 {
		return pid, nil
	}

	// the bootstrap exits right after reporting
	ws := waitPID(pid)
	code := 1
	if ws.Exited() {
		code = ws.ExitStatus()
	}
	return 0, &SpawnError{Argv: argv, Code: code, Reason: strings.TrimSpace(string(msg))}
}
