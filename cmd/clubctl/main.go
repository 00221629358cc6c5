// Command clubctl runs the periodic jobs: subscription reconciliation,
// account sync, price queue drain and schema migrations. Each job prints a
// JSON report to stdout and exits non-zero only when it cannot start.
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
	err := rootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
