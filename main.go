package main

import (
	"fmt"
	"os"

	"github.com/Nanite-Factory-Games/minit/lib"
	"github.com/Nanite-Factory-Games/minit/lib/ntw"
	"github.com/Nanite-Factory-Games/minit/sup"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

func main() {
	// the spawned child starts out as a copy of this binary
	if sup.Init() {
		return
	}

	var (
		configPath = pflag.StringP("config", "c", lib.DefaultConfigPath, "path to the JSON configuration")
		initLink   = pflag.String("init-link", sup.DefaultInitLink, "symlink naming the system's init binary")
		noChain    = pflag.Bool("no-chain", false, "never hand over to another init system")
		logLevel   = pflag.String("log-level", "", "trace, debug, info, warn or error (default $"+lib.LogLevelEnv+" or info)")
	)
	// the kernel passes unknown boot parameters on to init
	pflag.CommandLine.ParseErrorsWhitelist.UnknownFlags = true
	pflag.Parse()

	if err := lib.SetupLogging(*logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "minit:", err)
		os.Exit(1)
	}

	os.Exit(run(*configPath, *initLink, *noChain))
}

func run(configPath, initLink string, noChain bool) int {
	cfg, err := lib.LoadConfig(configPath)
	if err != nil {
		lib.LogError("Loading configuration: %v", err)
		return 1
	}

	prepareSystem(cfg)

	if !noChain {
		chainer, err := sup.NewChainer(initLink)
		if err != nil {
			lib.LogError("%v", err)
			return 1
		}
		if err := chainer.Chain(cfg); err != nil {
			lib.LogError("Chaining init: %v", err)
			return 1
		}
	}

	s := sup.NewSupervisor(cfg)
	if err := s.Run(); err != nil {
		lib.LogError("%v", err)
		return sup.ExitCode(err)
	}

	lib.LogSuccess("Primary child %d is gone, exiting", s.ChildPID())
	return 0
}

// prepareSystem applies the optional host tweaks. None of them is fatal.
func prepareSystem(cfg *lib.SystemConfig) {
	if cfg.RemountRootRW && lib.CheckCapability(unix.CAP_SYS_ADMIN, "remount /") {
		if err := lib.RemountRootRW(); err != nil {
			lib.LogWarn("Remounting / read-write: %v", err)
		}
	}
	if cfg.Loopback && lib.CheckCapability(unix.CAP_NET_ADMIN, "bring up "+ntw.LoopbackName) {
		if err := ntw.LoopbackUp(); err != nil {
			lib.LogWarn("Bringing up %s: %v", ntw.LoopbackName, err)
		}
	}
	if cfg.Subreaper {
		if err := lib.SetChildSubreaper(); err != nil {
			lib.LogWarn("Becoming a child subreaper: %v", err)
		}
	}
	lib.CheckReaper()
}
