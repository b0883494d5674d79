// Package remote talks to the object store holding the persisted job index.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the index object does not exist yet.
var ErrNotFound = errors.New("index object not found")

// Store exposes the one index blob the service cares about.
type Store interface {
	// LastModified returns the blob's version marker.
	LastModified(ctx context.Context) (time.Time, error)
	// Fetch downloads the blob to destPath.
	Fetch(ctx context.Context, destPath string) error
	// Upload replaces the blob with the file at srcPath.
	Upload(ctx context.Context, srcPath string) error
}
