// Package offline keeps mutating requests that could not reach the
// service and replays them later.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/server"
	"ledger/internal/storage"
)

// Record is one queued request.
type Record struct {
	Command server.Command `json:"command"`
	Params  server.Params  `json:"params"`
}

// Runner executes a replayed request.
type Runner interface {
	Run(ctx context.Context, cmd server.Command, p server.Params) (server.Response, error)
}

// Queue is a JSON array of records stored in a single file. Concurrent
// callers in one process are serialized; the file itself is replaced
// atomically on every write.
type Queue struct {
	path   string
	mu     sync.Mutex
	logger *log.Logger
}

func New(path string, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Discard()
	}
	return &Queue{path: path, logger: logger.WithComponent(log.ComponentOffline)}
}

// Path returns the backing file.
func (q *Queue) Path() string { return q.path }

// Append adds a record at the end of the queue. Failures are logged and
// reported as false.
func (q *Queue) Append(cmd server.Command, p server.Params) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.read()
	if err != nil {
		q.logger.Error("Failed to read offline backup", "path", q.path, log.FieldError, err.Error())
		return false
	}
	records = append(records, Record{Command: cmd, Params: p})
	if err := q.write(records); err != nil {
		q.logger.Error("Failed to write offline backup", "path", q.path, log.FieldError, err.Error())
		return false
	}
	q.logger.Info("Request stored offline", log.FieldCommand, string(cmd), log.FieldRecords, len(records))
	return true
}

// Records returns the queued records in order.
func (q *Queue) Records() ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read()
}

// Recover replays the queue in order. It reports false when there is
// nothing to replay. On the first failure the failed record and all later
// ones stay queued and an offline recovery error is returned.
func (q *Queue) Recover(ctx context.Context, r Runner) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.read()
	if err != nil {
		return false, core.WrapError(core.CodeOfflineRecovery, "offline backup unreadable", err)
	}
	if len(records) == 0 {
		return false, nil
	}

	for i, rec := range records {
		resp, err := r.Run(ctx, rec.Command, rec.Params)
		if err == nil && resp.Error != "" {
			err = core.InvalidRequestf("%s", resp.Error)
		}
		if err == nil {
			continue
		}
		if werr := q.write(records[i:]); werr != nil {
			err = errors.Join(err, werr)
		}
		q.logger.Warn("Offline recovery stopped",
			log.FieldCommand, string(rec.Command),
			log.FieldRecords, len(records)-i,
			log.FieldError, err.Error())
		return false, core.WrapError(core.CodeOfflineRecovery,
			fmt.Sprintf("offline recovery failed at %q (%d of %d): %v", rec.Command, i+1, len(records), err), err)
	}

	if err := q.clear(); err != nil {
		return false, core.WrapError(core.CodeOfflineRecovery, "offline backup not cleared", err)
	}
	q.logger.Info("Offline backup recovered", log.FieldRecords, len(records))
	return true, nil
}

func (q *Queue) read() ([]Record, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.path, err)
	}
	return records, nil
}

func (q *Queue) write(records []Record) error {
	if len(records) == 0 {
		return q.clear()
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(q.path, data, 0o600)
}

func (q *Queue) clear() error {
	if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
