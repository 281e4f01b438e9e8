// Package cli implements the ledger command line: argument parsing,
// input preprocessing and the run loop shared by every subcommand.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"ledger/internal/backend"
	"ledger/internal/client"
	"ledger/internal/config"
	"ledger/internal/log"
)

// SetupLogger builds the CLI logger. Records go to w so that command
// output on stdout stays clean. verbose forces debug level.
func SetupLogger(w io.Writer, level string, verbose bool) *log.Logger {
	lvl, _ := log.ParseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	return log.New(log.Config{Level: lvl, Component: log.ComponentCLI, Output: w})
}

// LoadConfig reads the configuration from the environment, overlaid by
// the dotenv file at path when one is given, and validates it.
func LoadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// backendClient runs commands in process and releases the whole backend
// on Close.
type backendClient struct {
	*client.Local
	cleanup backend.CleanupFunc
}

func (c backendClient) Close() error { return c.cleanup() }

// NewClient selects the transport named by the configured service.
func NewClient(ctx context.Context, cfg *config.Config, logger *log.Logger) (client.Client, error) {
	switch cfg.Service {
	case config.ServiceHTTP:
		return client.NewRemote(client.RemoteConfig{
			Host:     cfg.Host,
			Timeout:  cfg.Timeout,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	case config.ServiceNone:
		bcfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return nil, err
		}
		res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
		if err != nil {
			return nil, err
		}
		return backendClient{Local: client.NewLocal(res.Server), cleanup: res.Cleanup}, nil
	}
	return nil, fmt.Errorf("unknown service %q", cfg.Service)
}
