// Command portbus serves and sends port requests over a broker, and manages
// the sqlite-backed storage areas and browser tabs the bus exposes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "portbus:", err)
		stop()
		os.Exit(1)
	}
}
