// Command ledger records earnings and expenses from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ledger/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.NewApp().Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
