package sup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nanite-Factory-Games/minit/lib"
	"github.com/Nanite-Factory-Games/minit/lib/templ"
	"golang.org/x/sys/unix"
)

type InitKind int

const (
	InitSystemd InitKind = iota
	InitSysVinit
	InitUpstart
	InitOpenRC
	InitRunit
	InitS6
	InitBusybox
)

func (k InitKind) String() string {
	switch k {
	case InitSystemd:
		return "systemd"
	case InitSysVinit:
		return "sysvinit"
	case InitUpstart:
		return "upstart"
	case InitOpenRC:
		return "openrc"
	case InitRunit:
		return "runit"
	case InitS6:
		return "s6"
	case InitBusybox:
		return "busybox"
	}
	return fmt.Sprintf("init(%d)", int(k))
}

var (
	ErrUnsupportedInit = errors.New("not a supported init system")
	ErrNotYetSupported = errors.New("init system not yet supported")
)

const DefaultInitLink = "/sbin/init"

// Paths written inside the target root.
const (
	systemdUnitPath    = "/etc/systemd/system/minit.service"
	systemdWantsPath   = "/etc/systemd/system/default.target.wants/minit.service"
	openrcScriptPath   = "/etc/init.d/minit"
	openrcRunlevel     = "/etc/runlevels/default/minit"
	openrcBinary       = "/sbin/openrc"
	busyboxRunPath     = "/etc/init.d/minit.sh"
	busyboxInittabPath = "/etc/inittab"
)

// ResolveInitKind names the init system behind a fully resolved init path.
func ResolveInitKind(target string) (InitKind, error) {
	switch filepath.Base(target) {
	case "systemd":
		return InitSystemd, nil
	case "upstart":
		return InitUpstart, nil
	case "openrc":
		return InitOpenRC, nil
	case "runit":
		return InitRunit, nil
	case "s6-rc":
		return InitS6, nil
	case "busybox":
		return InitBusybox, nil
	}
	if strings.HasSuffix(target, "sysvinit/init") {
		return InitSysVinit, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedInit, target)
}

// Chainer hands the boot over to the system's real init once it has been
// told to run the configured command as a service.
type Chainer struct {
	// Root prefixes every path read or written; "/" outside tests.
	Root string
	// Link is the init symlink, relative to Root.
	Link string
	// Self is the resolved path of the running minit binary.
	Self string

	exec func(path string, argv, env []string) error
}

func NewChainer(link string) (*Chainer, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate minit binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}
	return &Chainer{Root: "/", Link: link, Self: self, exec: unix.Exec}, nil
}

func (c *Chainer) path(p string) string {
	return filepath.Join(c.Root, p)
}

// Target resolves the init link. ok is false when there is nothing to chain
// into: the link is missing, unreadable, or leads back to minit.
func (c *Chainer) Target() (target string, ok bool) {
	link := c.path(c.Link)
	if _, err := os.Readlink(link); err != nil {
		lib.LogDebug("Init link %s not usable: %v", link, err)
		return "", false
	}

	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		lib.LogDebug("Init link %s does not resolve: %v", link, err)
		return "", false
	}
	if target == c.Self {
		return "", false
	}
	return target, true
}

// Chain installs the command into the init system behind the init link and
// execs it. It returns nil without doing anything when there is no other
// init to chain into; after a successful hand-over it does not return.
func (c *Chainer) Chain(cfg *lib.SystemConfig) error {
	target, ok := c.Target()
	if !ok {
		return nil
	}

	kind, err := ResolveInitKind(target)
	if err != nil {
		return err
	}
	lib.LogInfo("Chaining into %s at %s", kind, target)

	if err := c.Setup(kind, cfg); err != nil {
		return fmt.Errorf("set up %s: %w", kind, err)
	}

	err = c.exec(target, []string{c.Link}, cfg.Environ(os.Environ()))
	return fmt.Errorf("exec %s: %w", target, err)
}

// Setup writes the service definition for kind under Root. Kinds that are
// recognised but not handled yet fail without touching the filesystem.
func (c *Chainer) Setup(kind InitKind, cfg *lib.SystemConfig) error {
	switch kind {
	case InitSystemd:
		return c.setupSystemd(cfg)
	case InitOpenRC:
		return c.setupOpenRC(cfg)
	case InitBusybox:
		return c.setupBusybox(cfg)
	case InitUpstart, InitRunit, InitS6, InitSysVinit:
		return fmt.Errorf("%w: %s", ErrNotYetSupported, kind)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedInit, kind)
}

func (c *Chainer) setupSystemd(cfg *lib.SystemConfig) error {
	unit, err := templ.SystemdService(cfg)
	if err != nil {
		return err
	}
	if err := c.writeFile(systemdUnitPath, unit, 0o644); err != nil {
		return err
	}
	return c.symlink(systemdUnitPath, systemdWantsPath)
}

func (c *Chainer) setupOpenRC(cfg *lib.SystemConfig) error {
	script, err := templ.OpenRCService(cfg)
	if err != nil {
		return err
	}
	if err := c.writeFile(openrcScriptPath, script, 0o755); err != nil {
		return err
	}
	return c.symlink(openrcScriptPath, openrcRunlevel)
}

func (c *Chainer) setupBusybox(cfg *lib.SystemConfig) error {
	if _, err := os.Stat(c.path(openrcBinary)); err == nil {
		lib.LogInfo("Found %s, starting the command through OpenRC", openrcBinary)
		if err := c.setupOpenRC(cfg); err != nil {
			return err
		}
		return c.writeFile(busyboxInittabPath, templ.BusyboxOpenRCInittab, 0o644)
	}

	run, err := templ.BusyboxRunfile(cfg)
	if err != nil {
		return err
	}
	if err := c.writeFile(busyboxRunPath, run, 0o755); err != nil {
		return err
	}
	return c.writeFile(busyboxInittabPath, templ.BusyboxInittab, 0o644)
}

func (c *Chainer) writeFile(name, data string, mode os.FileMode) error {
	p := c.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(data), mode); err != nil {
		return err
	}
	// WriteFile leaves the mode of an existing file alone and applies umask
	// to a new one
	if err := os.Chmod(p, mode); err != nil {
		return err
	}
	lib.LogDebug("Wrote %s", p)
	return nil
}

// symlink points name at target, replacing whatever name was before. target
// stays absolute inside the root so the link is valid once booted.
func (c *Chainer) symlink(target, name string) error {
	p := c.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Symlink(target, p); err != nil {
		return err
	}
	lib.LogDebug("Linked %s -> %s", p, target)
	return nil
}
