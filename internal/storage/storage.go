// Package storage persists the run journal: which videos were recorded,
// by which run, and where the files ended up.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists indicates the entity already exists in storage.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
	// ErrReadOnly indicates a write to a journal opened with OpenReadOnly.
	ErrReadOnly = errors.New("storage: journal opened read-only")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("create", "read", "update").
	Op string
	// Entity is the entity type ("run", "recording", "store").
	Entity string
	// ID is the entity ID if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Journal is the storage interface for runs and their recordings.
// Implementations must be safe for concurrent use.
type Journal interface {
	// CreateRun stores a new run and assigns its ID.
	CreateRun(ctx context.Context, run *Run) error
	// FinishRun records the final status and counters of a run.
	FinishRun(ctx context.Context, id string, status RunStatus, recorded, failed int) error
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]*Run, error)

	// AddRecording stores a recorded video. A later recording of the same
	// module and URL replaces the index entry.
	AddRecording(ctx context.Context, rec *Recording) error
	// Recordings lists the recordings of a run in recording order.
	Recordings(ctx context.Context, runID string) ([]*Recording, error)
	// IsRecorded reports whether url was already recorded for module.
	IsRecorded(ctx context.Context, module, url string) bool

	Close() error
}
