package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Cancelling the context kills the running cargo child; the unfinished
	// case stays unrecorded and runs again on the next invocation.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, a := newRootApp()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err, a.debug())
		os.Exit(exitCodeForError(err))
	}
}
