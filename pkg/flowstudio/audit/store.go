// Package audit persists per-node and per-run records of flow executions.
package audit

import (
	"context"
	"errors"
	"time"
)

// RunKey is the node id under which the final run record is stored.
const RunKey int64 = 0

// Store persists encoded audit records keyed by (run id, node id).
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record, overwriting any previous record for the key.
	Save(ctx context.Context, runID string, nodeID int64, data []byte) error

	// Load retrieves a record. Returns ErrNotFound if it doesn't exist.
	Load(ctx context.Context, runID string, nodeID int64) ([]byte, error)

	// List returns metadata for all records of a run, ordered by sequence.
	// Returns an empty slice (not an error) for unknown runs.
	List(ctx context.Context, runID string) ([]Info, error)

	// Delete removes a record. Missing records are not an error.
	Delete(ctx context.Context, runID string, nodeID int64) error

	// DeleteRun removes all records of a run.
	DeleteRun(ctx context.Context, runID string) error

	// Close releases any resources.
	Close() error
}

// Info describes a stored record without loading it.
type Info struct {
	RunID     string
	NodeID    int64
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("audit record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("audit store closed")
)
