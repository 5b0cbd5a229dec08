package sup

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, EventChildExit, Classify(unix.SIGCHLD))
	for _, sig := range []unix.Signal{unix.SIGTERM, unix.SIGINT, unix.SIGHUP, unix.SIGWINCH, unix.Signal(40)} {
		assert.Equal(t, EventSignal, Classify(sig), signalName(sig))
	}
}

func TestRoutedSignals(t *testing.T) {
	routed := RoutedSignals()

	for _, sig := range []unix.Signal{unix.SIGTERM, unix.SIGCHLD, unix.SIGHUP, unix.SIGUSR1, unix.SIGTTOU, unix.Signal(34), unix.Signal(64)} {
		assert.Contains(t, routed, os.Signal(sig), signalName(sig))
	}
	for _, sig := range []unix.Signal{unix.SIGKILL, unix.SIGSTOP, unix.SIGURG, unix.SIGSEGV, unix.Signal(32), unix.Signal(33)} {
		assert.NotContains(t, routed, os.Signal(sig), signalName(sig))
	}
}

func TestGateRequiresCapturedMask(t *testing.T) {
	g := NewSignalGate()
	assert.ErrorIs(t, g.BlockAll(), ErrSignalSetup)

	_, err := g.NextSignal()
	assert.ErrorIs(t, err, ErrSignalRead)
}

func TestGateCaptureIsStable(t *testing.T) {
	g := NewSignalGate()
	first, err := g.CaptureMask()
	require.NoError(t, err)
	second, err := g.CaptureMask()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, g.InitialMask())
}

func TestGateQueuesSignals(t *testing.T) {
	g := NewSignalGate()
	_, err := g.CaptureMask()
	require.NoError(t, err)
	require.NoError(t, g.BlockAll())
	defer g.Close()

	assert.ErrorIs(t, g.BlockAll(), ErrSignalSetup)

	for _, sig := range []unix.Signal{unix.SIGUSR1, unix.SIGHUP} {
		require.NoError(t, unix.Kill(os.Getpid(), sig))
		got, err := g.NextSignal()
		require.NoError(t, err)
		assert.Equal(t, sig, got)
	}
}

func TestGateClose(t *testing.T) {
	g := NewSignalGate()
	_, err := g.CaptureMask()
	require.NoError(t, err)
	require.NoError(t, g.BlockAll())

	g.Close()
	g.Close()

	_, err = g.NextSignal()
	assert.ErrorIs(t, err, ErrSignalRead)
	assert.ErrorIs(t, g.BlockAll(), ErrSignalSetup)
}
