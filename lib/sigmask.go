package lib

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// highest signal number the kernel delivers (_NSIG - 1)
const maxSignal = 64

var sigWordBits = int(unsafe.Sizeof(unix.Sigset_t{}.Val[0]) * 8)

// SignalMask is a copy of a thread's blocked-signal set. It is a value: once
// captured it does not follow later changes to the thread's mask.
//
// The kernel mask is per thread, so callers that capture or restore must hold
// runtime.LockOSThread for the mask to mean anything.
type SignalMask struct {
	set unix.Sigset_t
}

func NewSignalMask(sigs ...unix.Signal) SignalMask {
	var m SignalMask
	for _, s := range sigs {
		m.Add(s)
	}
	return m
}

func (m *SignalMask) Add(sig unix.Signal) {
	if sig < 1 || sig > maxSignal {
		return
	}
	n := int(sig) - 1
	m.set.Val[n/sigWordBits] |= 1 << uint(n%sigWordBits)
}

func (m SignalMask) Has(sig unix.Signal) bool {
	if sig < 1 || sig > maxSignal {
		return false
	}
	n := int(sig) - 1
	return m.set.Val[n/sigWordBits]&(1<<uint(n%sigWordBits)) != 0
}

// Signals lists the members in ascending order.
func (m SignalMask) Signals() []unix.Signal {
	var sigs []unix.Signal
	for s := unix.Signal(1); s <= maxSignal; s++ {
		if m.Has(s) {
			sigs = append(sigs, s)
		}
	}
	return sigs
}

func (m SignalMask) String() string {
	names := make([]string, 0, 8)
	for _, s := range m.Signals() {
		name := unix.SignalName(s)
		if name == "" {
			name = strconv.Itoa(int(s))
		}
		names = append(names, name)
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Encode packs the mask into a hex word suitable for an argv element.
func (m SignalMask) Encode() string {
	var bits uint64
	for _, s := range m.Signals() {
		bits |= 1 << uint(s-1)
	}
	return strconv.FormatUint(bits, 16)
}

func DecodeSignalMask(s string) (SignalMask, error) {
	var m SignalMask
	bits, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return m, fmt.Errorf("signal mask %q: %w", s, err)
	}
	for n := 0; n < maxSignal; n++ {
		if bits&(1<<uint(n)) != 0 {
			m.Add(unix.Signal(n + 1))
		}
	}
	return m, nil
}

// CaptureMask reads the calling thread's blocked set without changing it.
func CaptureMask() (SignalMask, error) {
	var m SignalMask
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, nil, &m.set); err != nil {
		return m, fmt.Errorf("pthread_sigmask(get): %w", err)
	}
	return m, nil
}

// RestoreMask installs m as the calling thread's blocked set.
func RestoreMask(m SignalMask) error {
	if err := unix.PthreadSigmask(unix.SIG_SETMASK, &m.set, nil); err != nil {
		return fmt.Errorf("pthread_sigmask(set): %w", err)
	}
	return nil
}

// BlockSignals adds sigs to the calling thread's blocked set.
func BlockSignals(sigs ...unix.Signal) error {
	m := NewSignalMask(sigs...)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &m.set, nil); err != nil {
		return fmt.Errorf("pthread_sigmask(block): %w", err)
	}
	return nil
}
