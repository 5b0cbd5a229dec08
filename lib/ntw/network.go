package ntw

import (
	"fmt"
	"net"
	"runtime"

	"github.com/Nanite-Factory-Games/minit/lib"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

const LoopbackName = "lo"

// LoopbackUp brings the loopback link of the current network namespace up.
// A fresh namespace has lo down, and nothing else on a minimal root will
// raise it.
func LoopbackUp() error {
	// netns handles are per thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ns, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get netns: %w", err)
	}
	defer ns.Close()

	return loopbackUpAt(ns)
}

func loopbackUpAt(ns netns.NsHandle) error {
	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		return fmt.Errorf("netlink handle: %w", err)
	}
	defer h.Close()

	link, err := h.LinkByName(LoopbackName)
	if err != nil {
		return fmt.Errorf("find %s: %w", LoopbackName, err)
	}

	if link.Attrs().Flags&net.FlagUp != 0 {
		lib.LogDebug("%s already up in %s", LoopbackName, ns)
		return nil
	}

	if err := h.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %s up: %w", LoopbackName, err)
	}
	lib.LogInfo("Brought %s up", LoopbackName)
	return nil
}
