// Command mutacache serves a cache-consistent resource API whose writes
// run in pessimistic, optimistic or undoable mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mutacache: %v\n", err)
		os.Exit(1)
	}
}
