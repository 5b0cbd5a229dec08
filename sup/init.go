package sup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Nanite-Factory-Games/minit/lib"
	"golang.org/x/sys/unix"
)

// BootstrapName is argv[0] of the re-executed minit that becomes the child.
const BootstrapName = "minit-bootstrap"

// statusFd carries an exec failure back to the supervisor. A successful exec
// closes it.
const statusFd = 3

var errBootstrapUsage = errors.New("usage: " + BootstrapName + " LEVEL MASK -- COMMAND [ARG...]")

// bootstrapArgs builds the bootstrap's argv. The log level travels on argv
// rather than in the environment so the command never sees it.
func bootstrapArgs(level string, mask lib.SignalMask, argv []string) []string {
	return append([]string{BootstrapName, level, mask.Encode(), "--"}, argv...)
}

func parseBootstrapArgs(args []string) (level string, mask lib.SignalMask, argv []string, err error) {
	if len(args) < 4 || args[2] != "--" {
		return "", mask, nil, errBootstrapUsage
	}
	mask, err = lib.DecodeSignalMask(args[1])
	if err != nil {
		return "", mask, nil, err
	}
	return args[0], mask, args[3:], nil
}

// Init runs the bootstrap child when the process was started as one and
// exits without returning. Otherwise it returns false. It must be the first
// thing main (and TestMain) does.
func Init() bool {
	if filepath.Base(os.Args[0]) != BootstrapName {
		return false
	}
	os.Exit(RunBootstrap(os.Args[1:]))
	return true
}

// RunBootstrap prepares the freshly forked child and replaces it with the
// configured command: own process group in the foreground of the terminal,
// then the signal mask minit started with, then exec. It only returns when
// one of those steps failed, with the exit status to use.
func RunBootstrap(args []string) int {
	runtime.LockOSThread()

	unix.CloseOnExec(statusFd)
	status := os.NewFile(statusFd, "exec-status")

	fail := func(code int, err error) int {
		lib.Logger().WithField("code", code).Errorf("Bootstrap: %v", err)
		if status != nil {
			fmt.Fprint(status, err.Error())
			status.Close()
		}
		return code
	}

	level, mask, argv, err := parseBootstrapArgs(args)
	if err != nil {
		return fail(1, err)
	}
	if err := lib.SetupLogging(level); err != nil {
		lib.LogDebug("Bootstrap: keeping default logging: %v", err)
	}

	if err := lib.MakeForeground(); err != nil {
		return fail(1, err)
	}
	if err := lib.RestoreMask(mask); err != nil {
		return fail(1, fmt.Errorf("restore signal mask %s: %w", mask, err))
	}

	err = lib.ExecWorkload(argv, os.Environ())
	return fail(lib.ExecExitCode(err), err)
}
