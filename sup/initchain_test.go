package sup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Nanite-Factory-Games/minit/lib"
	"github.com/Nanite-Factory-Games/minit/lib/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExecStubbed = errors.New("exec stubbed out")

type execCall struct {
	path string
	argv []string
}

type chainHarness struct {
	chainer *Chainer
	root    string
	calls   []execCall
}

func newChainHarness(t *testing.T) *chainHarness {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	h := &chainHarness{root: root}
	h.chainer = &Chainer{
		Root: root,
		Link: DefaultInitLink,
		Self: filepath.Join(root, "usr/local/bin/minit"),
		exec: func(path string, argv, env []string) error {
			h.calls = append(h.calls, execCall{path, argv})
			return errExecStubbed
		},
	}
	return h
}

// install creates an executable at rel inside the root and points the init
// link at it.
func (h *chainHarness) install(t *testing.T, rel string) string {
	t.Helper()
	target := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("#!/bin/true\n"), 0o755))

	link := filepath.Join(h.root, DefaultInitLink)
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	require.NoError(t, os.Symlink(target, link))
	return target
}

func (h *chainHarness) read(t *testing.T, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(h.root, rel))
	require.NoError(t, err)
	return string(b)
}

func (h *chainHarness) mode(t *testing.T, rel string) os.FileMode {
	t.Helper()
	fi, err := os.Stat(filepath.Join(h.root, rel))
	require.NoError(t, err)
	return fi.Mode().Perm()
}

func (h *chainHarness) readlink(t *testing.T, rel string) string {
	t.Helper()
	dst, err := os.Readlink(filepath.Join(h.root, rel))
	require.NoError(t, err)
	return dst
}

func chainConfig() *lib.SystemConfig {
	return &lib.SystemConfig{Cmd: lib.Argv{"sleep", "5"}}
}

func TestResolveInitKind(t *testing.T) {
	for path, want := range map[string]InitKind{
		"/lib/systemd/systemd": InitSystemd,
		"/sbin/upstart":        InitUpstart,
		"/sbin/openrc":         InitOpenRC,
		"/sbin/runit":          InitRunit,
		"/usr/bin/s6-rc":       InitS6,
		"/bin/busybox":         InitBusybox,
		"/lib/sysvinit/init":   InitSysVinit,
	} {
		got, err := ResolveInitKind(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	for _, path := range []string{"/sbin/tini", "/sbin/init", "/usr/bin/dumb-init"} {
		_, err := ResolveInitKind(path)
		assert.ErrorIs(t, err, ErrUnsupportedInit, path)
	}
}

func TestChainWithoutInitLink(t *testing.T) {
	h := newChainHarness(t)
	require.NoError(t, h.chainer.Chain(chainConfig()))
	assert.Empty(t, h.calls)
}

func TestChainLinkToSelf(t *testing.T) {
	h := newChainHarness(t)
	h.chainer.Self = h.install(t, "usr/local/bin/minit")

	require.NoError(t, h.chainer.Chain(chainConfig()))
	assert.Empty(t, h.calls)
	assert.NoDirExists(t, filepath.Join(h.root, "etc"))
}

func TestChainSystemd(t *testing.T) {
	h := newChainHarness(t)
	target := h.install(t, "usr/lib/systemd/systemd")

	err := h.chainer.Chain(chainConfig())
	require.ErrorIs(t, err, errExecStubbed)
	assert.Equal(t, []execCall{{target, []string{DefaultInitLink}}}, h.calls)

	unit, err := templ.SystemdService(chainConfig())
	require.NoError(t, err)
	assert.Equal(t, unit, h.read(t, "etc/systemd/system/minit.service"))
	assert.Equal(t, "/etc/systemd/system/minit.service",
		h.readlink(t, "etc/systemd/system/default.target.wants/minit.service"))
}

func TestChainOpenRC(t *testing.T) {
	h := newChainHarness(t)
	target := h.install(t, "sbin/openrc")

	err := h.chainer.Chain(chainConfig())
	require.ErrorIs(t, err, errExecStubbed)
	assert.Equal(t, []execCall{{target, []string{DefaultInitLink}}}, h.calls)

	script, err := templ.OpenRCService(chainConfig())
	require.NoError(t, err)
	assert.Equal(t, script, h.read(t, "etc/init.d/minit"))
	assert.Equal(t, os.FileMode(0o755), h.mode(t, "etc/init.d/minit"))
	assert.Equal(t, "/etc/init.d/minit", h.readlink(t, "etc/runlevels/default/minit"))
}

func TestChainBusybox(t *testing.T) {
	h := newChainHarness(t)
	h.install(t, "bin/busybox")

	err := h.chainer.Chain(chainConfig())
	require.ErrorIs(t, err, errExecStubbed)
	require.Len(t, h.calls, 1)

	run, err := templ.BusyboxRunfile(chainConfig())
	require.NoError(t, err)
	assert.Equal(t, run, h.read(t, "etc/init.d/minit.sh"))
	assert.Equal(t, os.FileMode(0o755), h.mode(t, "etc/init.d/minit.sh"))
	assert.Equal(t, templ.BusyboxInittab, h.read(t, "etc/inittab"))
	assert.NoFileExists(t, filepath.Join(h.root, "etc/init.d/minit"))
}

func TestChainBusyboxWithOpenRC(t *testing.T) {
	h := newChainHarness(t)
	h.install(t, "bin/busybox")
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "sbin/openrc"), nil, 0o755))

	err := h.chainer.Chain(chainConfig())
	require.ErrorIs(t, err, errExecStubbed)

	assert.Equal(t, templ.BusyboxOpenRCInittab, h.read(t, "etc/inittab"))
	assert.Equal(t, "/etc/init.d/minit", h.readlink(t, "etc/runlevels/default/minit"))
	assert.NoFileExists(t, filepath.Join(h.root, "etc/init.d/minit.sh"))
}

func TestChainNotYetSupported(t *testing.T) {
	for _, rel := range []string{"sbin/upstart", "sbin/runit", "usr/bin/s6-rc", "lib/sysvinit/init"} {
		t.Run(filepath.Base(filepath.Dir(rel))+"/"+filepath.Base(rel), func(t *testing.T) {
			h := newChainHarness(t)
			h.install(t, rel)

			err := h.chainer.Chain(chainConfig())
			assert.ErrorIs(t, err, ErrNotYetSupported)
			assert.Empty(t, h.calls)
			assert.NoDirExists(t, filepath.Join(h.root, "etc"))
		})
	}
}

func TestChainUnsupportedInit(t *testing.T) {
	h := newChainHarness(t)
	h.install(t, "sbin/tini")

	err := h.chainer.Chain(chainConfig())
	assert.ErrorIs(t, err, ErrUnsupportedInit)
	assert.Empty(t, h.calls)
}

func TestSetupIsRepeatable(t *testing.T) {
	h := newChainHarness(t)
	require.NoError(t, h.chainer.Setup(InitSystemd, chainConfig()))

	cfg := &lib.SystemConfig{Cmd: lib.Argv{"sleep", "10"}}
	require.NoError(t, h.chainer.Setup(InitSystemd, cfg))

	unit, err := templ.SystemdService(cfg)
	require.NoError(t, err)
	assert.Equal(t, unit, h.read(t, "etc/systemd/system/minit.service"))
}

func TestSetupBadCommand(t *testing.T) {
	h := newChainHarness(t)
	err := h.chainer.Setup(InitOpenRC, &lib.SystemConfig{})
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(h.root, "etc/init.d/minit"))
}
