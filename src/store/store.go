// Package store persists pipeline checkpoints so a crashed worker can resume a review.
package store

import (
	"context"
	"fmt"
	"time"
)

// Snapshot is a serialized ReviewRecord captured between pipeline stages.
type Snapshot struct {
	RecordID string
	// Stage is the next stage to run when resuming.
	Stage     string
	Data      []byte
	UpdatedAt time.Time
}

// Store defines checkpoint persistence. Implementations must be safe for
// concurrent use by every in-flight job of a worker.
type Store interface {
	// Put writes or replaces the snapshot for recordID.
	Put(ctx context.Context, recordID string, snap Snapshot) error

	// Get returns the latest snapshot for recordID, or ErrNotFound.
	Get(ctx context.Context, recordID string) (Snapshot, error)

	// Close closes the store connection
	Close() error
}

// ErrNotFound is returned when no checkpoint exists for a record.
type ErrNotFound struct {
	RecordID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("checkpoint not found: %s", e.RecordID)
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
