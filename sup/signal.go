package sup

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/Nanite-Factory-Games/minit/lib"
	"golang.org/x/sys/unix"
)

type EventType int

const (
	EventChildExit EventType = iota
	EventSignal
)

// Classify tells a child-termination notice from a signal meant for the child.
func Classify(sig unix.Signal) EventType {
	if sig == unix.SIGCHLD {
		return EventChildExit
	}
	return EventSignal
}

var (
	ErrSignalSetup = errors.New("signal setup failed")
	ErrSignalRead  = errors.New("signal read failed")
)

// Signals that are never routed through the gate: uncatchable ones, the
// synchronous faults the runtime turns into panics, SIGURG (goroutine
// preemption) and the two real-time signals reserved by the C library.
var unroutable = map[unix.Signal]bool{
	unix.SIGKILL:    true,
	unix.SIGSTOP:    true,
	unix.SIGSEGV:    true,
	unix.SIGBUS:     true,
	unix.SIGFPE:     true,
	unix.SIGILL:     true,
	unix.SIGURG:     true,
	unix.Signal(32): true,
	unix.Signal(33): true,
}

const queueDepth = 128

// RoutedSignals lists every signal the gate queues.
func RoutedSignals() []os.Signal {
	sigs := make([]os.Signal, 0, 64)
	for s := unix.Signal(1); s <= 64; s++ {
		if !unroutable[s] {
			sigs = append(sigs, s)
		}
	}
	return sigs
}

// SignalGate turns asynchronous signal delivery into one ordered queue that
// is read synchronously, one signal at a time.
//
// The Go runtime owns signal handling on every thread, so instead of blocking
// signals and reading a signalfd the gate registers for every catchable
// signal and the runtime's handler feeds the queue. The thread mask is still
// captured before the gate is armed so the child can be given the mask minit
// itself started with.
type SignalGate struct {
	initial  lib.SignalMask
	captured bool
	queue    chan os.Signal
	closed   bool
}

func NewSignalGate() *SignalGate {
	return &SignalGate{}
}

// CaptureMask snapshots the calling thread's blocked set. Only the first call
// reads the kernel; later calls return the same snapshot.
func (g *SignalGate) CaptureMask() (lib.SignalMask, error) {
	if g.captured {
		return g.initial, nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	m, err := lib.CaptureMask()
	if err != nil {
		return m, err
	}
	g.initial = m
	g.captured = true
	return m, nil
}

func (g *SignalGate) InitialMask() lib.SignalMask {
	return g.initial
}

// BlockAll arms the gate: from here on every routable signal lands in the
// queue instead of taking its default action.
func (g *SignalGate) BlockAll() error {
	switch {
	case !g.captured:
		return fmt.Errorf("%w: initial mask not captured", ErrSignalSetup)
	case g.closed:
		return fmt.Errorf("%w: gate closed", ErrSignalSetup)
	case g.queue != nil:
		return fmt.Errorf("%w: gate already armed", ErrSignalSetup)
	}

	g.queue = make(chan os.Signal, queueDepth)
	signal.Notify(g.queue, RoutedSignals()...)
	lib.LogTrace("Routing %d signals through the gate", cap(g.queue))
	return nil
}

// NextSignal blocks until one signal is pending and returns it.
func (g *SignalGate) NextSignal() (unix.Signal, error) {
	if g.queue == nil {
		return 0, fmt.Errorf("%w: gate not armed", ErrSignalRead)
	}

	s, ok := <-g.queue
	if !ok {
		return 0, fmt.Errorf("%w: gate closed", ErrSignalRead)
	}
	sig, ok := s.(unix.Signal)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected signal %v", ErrSignalRead, s)
	}
	return sig, nil
}

// Close stops routing. Signals already queued can still be read.
func (g *SignalGate) Close() {
	if g.queue == nil || g.closed {
		return
	}
	signal.Stop(g.queue)
	close(g.queue)
	g.closed = true
}
