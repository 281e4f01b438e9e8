package backend

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/log"
	"ledger/internal/server"
	"ledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the store and wraps it in a server. When an AMQP URL
// is configured, mutations are also published as events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(config)
	if err != nil {
		return nil, err
	}
	logger := f.logger.WithComponent(log.ComponentBackend)

	opts := []server.Option{server.WithLogger(f.logger)}
	var pub *amqp.Publisher
	if config.AMQPURL != "" {
		pub = amqp.NewPublisher(config.AMQPURL, config.AMQPExchange, f.logger)
		opts = append(opts, server.WithNotifier(pub))
	}
	srv := server.New(store, opts...)
	// The server drains its queued events into the publisher before the
	// publisher's connection goes away.
	cleanups := []CleanupFunc{srv.Close}
	if pub != nil {
		cleanups = append(cleanups, pub.Close)
	}

	logger.InfoContext(ctx, "Initialized backend",
		log.FieldBackend, config.Type.String(),
		"amqp_enabled", config.AMQPURL != "")

	return &BackendResult{
		Server: srv,
		Store:  store,
		Cleanup: func() error {
			var errs []error
			for _, c := range cleanups {
				errs = append(errs, c())
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) openStore(config Config) (storage.Store, error) {
	switch config.Type {
	case MemoryBackend:
		return storage.NewMemoryStore(), nil
	case JSONBackend:
		store, err := storage.NewJSONStore(config.DataDirectory)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JSON store: %w", err)
		}
		return store, nil
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
}
