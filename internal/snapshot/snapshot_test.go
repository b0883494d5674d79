package snapshot_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/recommender-service/internal/catalog"
	"jobmate/recommender-service/internal/model"
	"jobmate/recommender-service/internal/snapshot"
	"jobmate/recommender-service/internal/vectorindex"
)

func makeIndex(t *testing.T, n int) *vectorindex.Index {
	t.Helper()
	ix, err := vectorindex.New(2)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := ix.Add(vectorindex.Normalize([]float32{1, float32(i)}))
		require.NoError(t, err)
	}
	return ix
}

func makeCatalog(n int) *catalog.Catalog {
	records := make([]model.JobRecord, n)
	for i := range records {
		records[i].Title = "job"
	}
	return catalog.New(records)
}

func TestNewRejectsSizeMismatch(t *testing.T) {
	_, err := snapshot.New(makeIndex(t, 3), makeCatalog(2), time.Now())
	require.ErrorIs(t, err, snapshot.ErrSizeMismatch)
}

func TestNewRejectsMissingParts(t *testing.T) {
	_, err := snapshot.New(nil, makeCatalog(0), time.Now())
	require.Error(t, err)
	_, err = snapshot.New(makeIndex(t, 0), nil, time.Now())
	require.Error(t, err)
}

func TestNewSnapshot(t *testing.T) {
	version := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	snap, err := snapshot.New(makeIndex(t, 4), makeCatalog(4), version)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Len())
	assert.Equal(t, snap.Index().Len(), snap.Catalog().Len())
	assert.Equal(t, version, snap.SourceVersion())
	assert.NotEmpty(t, snap.ID())
	assert.False(t, snap.LoadedAt().IsZero())

	assert.True(t, snap.IsNewer(version.Add(time.Second)))
	assert.False(t, snap.IsNewer(version))
	assert.False(t, snap.IsNewer(version.Add(-time.Second)))
}

func TestStoreNotReadyBeforeFirstSwap(t *testing.T) {
	store := snapshot.NewStore()

	snap, ok := store.Get()
	assert.False(t, ok)
	assert.Nil(t, snap)
	assert.False(t, store.Ready())
}

func TestStoreSwap(t *testing.T) {
	store := snapshot.NewStore()
	first, err := snapshot.New(makeIndex(t, 1), makeCatalog(1), time.Unix(1, 0))
	require.NoError(t, err)
	second, err := snapshot.New(makeIndex(t, 2), makeCatalog(2), time.Unix(2, 0))
	require.NoError(t, err)

	assert.Nil(t, store.Swap(first))
	held, ok := store.Get()
	require.True(t, ok)

	assert.Same(t, first, store.Swap(second))
	got, _ := store.Get()
	assert.Same(t, second, got)

	// A reference obtained before the swap stays valid.
	assert.Equal(t, 1, held.Len())

	assert.Same(t, second, store.Swap(nil))
	got, _ = store.Get()
	assert.Same(t, second, got)
}

func TestStoreConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	store := snapshot.NewStore()
	snaps := make([]*snapshot.Snapshot, 20)
	for i := range snaps {
		s, err := snapshot.New(makeIndex(t, i+1), makeCatalog(i+1), time.Unix(int64(i), 0))
		require.NoError(t, err)
		snaps[i] = s
	}
	store.Swap(snaps[0])

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s, ok := store.Get()
				if !ok || s.Index().Len() != s.Catalog().Len() {
					t.Error("reader observed an inconsistent snapshot")
					return
				}
			}
		}()
	}
	for _, s := range snaps[1:] {
		store.Swap(s)
	}
	close(stop)
	wg.Wait()

	got, _ := store.Get()
	assert.Same(t, snaps[len(snaps)-1], got)
}
