package backend

import (
	"context"

	"ledger/internal/server"
	"ledger/internal/storage"
)

// CleanupFunc releases the resources of a backend.
type CleanupFunc func() error

// BackendResult is a ready server over the configured store.
type BackendResult struct {
	Server  *server.Server
	Store   storage.Store
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// JSON files
	DataDirectory string

	// SQLite
	SQLiteDBPath string

	// Optional mutation events
	AMQPURL      string
	AMQPExchange string
}

// BackendType names a storage backend.
type BackendType string

const (
	JSONBackend   BackendType = "json"
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case JSONBackend, MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
