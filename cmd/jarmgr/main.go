package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/jarmgr"
	"github.com/loykin/jarmgr/internal/daemon"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// the detached daemon skips all other argument parsing
	if len(os.Args) > 1 && os.Args[1] == daemon.SentinelArg {
		os.Exit(runDaemonMode())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot(newCommand(os.Stdout, os.Stdin))
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemonMode() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := jarmgr.RunDetached(ctx, os.Getenv(daemon.RootEnv)); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
