package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"ledger/internal/client"
	"ledger/internal/config"
	"ledger/internal/format"
	"ledger/internal/log"
	"ledger/internal/offline"
	"ledger/internal/server"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// App runs one command line invocation.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	// NewClient selects the transport. Defaults to NewClient.
	NewClient func(ctx context.Context, cfg *config.Config, logger *log.Logger) (client.Client, error)
}

// NewApp writes to the process streams.
func NewApp() *App {
	return &App{Stdout: os.Stdout, Stderr: os.Stderr, NewClient: NewClient}
}

// Run executes the command line and returns the exit code. After a
// successful command the offline backup is replayed. A failed mutation
// that may succeed later is stored in the offline backup.
func (a *App) Run(ctx context.Context, args []string) int {
	inv, err := Parse(args, a.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		return ExitFailure
	}

	cfg, err := LoadConfig(inv.ConfigPath)
	if err != nil {
		fmt.Fprintf(a.Stderr, "Invalid configuration: %v\n", err)
		return ExitFailure
	}
	logger := SetupLogger(a.Stderr, cfg.LogLevel, inv.Verbose)

	opts := format.Options{
		DefaultCategory: cfg.DefaultCategory,
		EntrySort:       inv.EntrySort,
		CategorySort:    inv.CategorySort,
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitFailure
	}
	if err := Preprocess(&inv, cfg); err != nil {
		fmt.Fprintln(a.Stderr, err)
		return ExitFailure
	}

	newClient := a.NewClient
	if newClient == nil {
		newClient = NewClient
	}
	c, err := newClient(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(a.Stderr, format.Error(err))
		return ExitFailure
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close client", log.FieldError, err.Error())
		}
	}()

	logger.DebugContext(ctx, "Running command",
		log.FieldCommand, string(inv.Command),
		log.FieldPeriod, inv.Params.Period,
		"service", cfg.Service)

	sinks := client.Sinks{
		Info: func(cmd server.Command, resp server.Response) {
			if out := format.Response(cmd, resp, opts); out != "" {
				fmt.Fprintln(a.Stdout, out)
			}
		},
		Error: func(err error) {
			fmt.Fprintln(a.Stderr, format.Error(err))
		},
	}
	success, storeOffline := client.SafelyRun(ctx, c, sinks, inv.Command, inv.Params)

	exitCode := ExitFailure
	queue := offline.New(cfg.OfflineFile, logger)
	if success {
		exitCode = ExitSuccess
		recovered, err := queue.Recover(ctx, c)
		switch {
		case err != nil:
			logger.ErrorContext(ctx, "Offline recovery failed", log.FieldError, err.Error())
			fmt.Fprintln(a.Stderr, "Offline backup recovery failed!")
			exitCode = ExitFailure
		case recovered:
			fmt.Fprintln(a.Stdout, "Recovered offline backup.")
		}
	}
	if storeOffline && queue.Append(inv.Command, inv.Params) {
		fmt.Fprintf(a.Stdout, "Stored '%s' request in offline backup.\n", inv.Command)
	}
	return exitCode
}
