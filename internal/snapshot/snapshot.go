// Package snapshot pairs a vector index with its catalog and publishes the
// current pair to concurrent readers.
package snapshot

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jobmate/recommender-service/internal/catalog"
	"jobmate/recommender-service/internal/vectorindex"
)

// ErrSizeMismatch is returned when an index and catalog disagree on row count.
var ErrSizeMismatch = errors.New("index and catalog sizes differ")

// Snapshot is an immutable index + catalog pair. Its fields are only set by
// New, so a Snapshot value always satisfies Index().Len() == Catalog().Len().
type Snapshot struct {
	id            string
	index         *vectorindex.Index
	catalog       *catalog.Catalog
	sourceVersion time.Time
	loadedAt      time.Time
}

// New validates row-count parity and returns a Snapshot.
func New(index *vectorindex.Index, cat *catalog.Catalog, sourceVersion time.Time) (*Snapshot, error) {
	if index == nil || cat == nil {
		return nil, errors.New("snapshot needs both an index and a catalog")
	}
	if index.Len() != cat.Len() {
		return nil, fmt.Errorf("%w: index=%d catalog=%d", ErrSizeMismatch, index.Len(), cat.Len())
	}
	return &Snapshot{
		id:            uuid.NewString(),
		index:         index,
		catalog:       cat,
		sourceVersion: sourceVersion,
		loadedAt:      time.Now(),
	}, nil
}

func (s *Snapshot) ID() string { return s.id }
func (s *Snapshot) Index() *vectorindex.Index { return s.index }
func (s *Snapshot) Catalog() *catalog.Catalog { return s.catalog }
func (s *Snapshot) SourceVersion() time.Time { return s.sourceVersion }
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }
func (s *Snapshot) Len() int { return s.catalog.Len() }

// IsNewer reports whether version is strictly newer than the snapshot's.
func (s *Snapshot) IsNewer(version time.Time) bool {
	return version.After(s.sourceVersion)
}

// Store holds the current Snapshot. Get never blocks; Swap replaces the
// pointer atomically. A reader that already holds a Snapshot keeps using it
// after a Swap.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current snapshot. ok is false until the first Swap.
func (s *Store) Get() (snap *Snapshot, ok bool) {
	snap = s.current.Load()
	return snap, snap != nil
}

// Ready reports whether a snapshot has been published.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// Swap publishes next and returns the snapshot it replaced. A nil next is
// ignored so the store never goes back to the empty state.
func (s *Store) Swap(next *Snapshot) (prev *Snapshot) {
	if next == nil {
		return s.current.Load()
	}
	return s.current.Swap(next)
}
