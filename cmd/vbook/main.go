// vbook drafts, reviews and illustrates a serialized novel one chapter at a
// time.
//
// Usage:
//
//	vbook generate --chapter=N    draft and refine each act of a chapter
//	vbook review   --chapter=N    finish act reviews, then review the whole chapter
//	vbook vote     --chapter=N    propose plot options for chapter N+1
//	vbook images   --chapter=N [--act=M]
//	vbook status
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
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if merr := flushMetrics(); merr != nil {
		fmt.Fprintln(os.Stderr, merr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
