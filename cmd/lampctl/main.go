package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/edvin/lampctl/cmd/lampctl/commands"
)

// Version information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.Execute(ctx, os.Args[1:], commands.Streams{
		In:  os.Stdin,
		Out: os.Stdout,
		Err: os.Stderr,
	}, commands.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate})
	stop()
	os.Exit(code)
}
