package builder_test

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/recommender-service/internal/builder"
	"jobmate/recommender-service/internal/model"
	"jobmate/recommender-service/internal/remote"
	"jobmate/recommender-service/internal/vectorindex"
)

type staticSource struct {
	records []model.JobRecord
	err     error
}

func (s staticSource) Load(ctx context.Context) ([]model.JobRecord, error) { return s.records, s.err }

// hashEmbedder maps text to a deterministic 8-dim vector.
type hashEmbedder struct {
	failOn string
	mu     sync.Mutex
	seen   []string
}

func (h *hashEmbedder) ModelID() string { return "hash" }

func (h *hashEmbedder) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.seen = append(h.seen, text)
	h.mu.Unlock()
	if h.failOn != "" && strings.Contains(text, h.failOn) {
		return nil, errors.New("rate limited")
	}
	return hashVec(text), nil
}

func hashVec(text string) []float32 {
	v := make([]float32, 8)
	for i := range v {
		f := fnv.New32a()
		_, _ = f.Write([]byte{byte(i)})
		_, _ = f.Write([]byte(text))
		v[i] = float32(f.Sum32()%1000) + 1
	}
	return v
}

// recordingStore serves published as the remote blob, if set.
type recordingStore struct {
	published string
	uploaded  string
	err       error
}

func (r *recordingStore) LastModified(ctx context.Context) (time.Time, error) { return time.Time{}, nil }

func (r *recordingStore) Fetch(ctx context.Context, dest string) error {
	if r.published == "" {
		return remote.ErrNotFound
	}
	raw, err := os.ReadFile(r.published)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, raw, 0o644)
}

func (r *recordingStore) Upload(ctx context.Context, src string) error {
	r.uploaded = src
	return r.err
}

func jobs(n int) []model.JobRecord {
	out := make([]model.JobRecord, n)
	for i := range out {
		out[i] = model.JobRecord{Title: "Job " + string(rune('A'+i)), Skills: "go"}
	}
	return out
}

func TestBuildKeepsCatalogOrder(t *testing.T) {
	records := jobs(12)
	b := builder.New(staticSource{records: records}, &hashEmbedder{}, nil, nil)

	ix, err := b.Build(context.Background(), builder.Options{Concurrency: 3})
	require.NoError(t, err)
	require.Equal(t, len(records), ix.Len())
	assert.Equal(t, 8, ix.Dim())

	for i, r := range records {
		hits, err := ix.Search(vectorindex.Normalize(hashVec(r.EmbeddingText())), 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, i, hits[0].Position, "row %d", i)
	}
}

func TestBuildEmptyCatalog(t *testing.T) {
	b := builder.New(staticSource{}, &hashEmbedder{}, nil, nil)
	_, err := b.Build(context.Background(), builder.Options{})
	require.ErrorContains(t, err, "catalog is empty")
}

func TestBuildEmbeddingFailure(t *testing.T) {
	b := builder.New(staticSource{records: jobs(5)}, &hashEmbedder{failOn: "Job C"}, nil, nil)
	_, err := b.Build(context.Background(), builder.Options{})
	require.ErrorContains(t, err, "embed job 2")
}

func TestBuildCatalogFailure(t *testing.T) {
	b := builder.New(staticSource{err: errors.New("db down")}, &hashEmbedder{}, nil, nil)
	_, err := b.Build(context.Background(), builder.Options{})
	require.ErrorContains(t, err, "load catalog")
}

func TestRunSavesAndUploads(t *testing.T) {
	store := &recordingStore{}
	b := builder.New(staticSource{records: jobs(6)}, &hashEmbedder{}, store, nil)
	out := filepath.Join(t.TempDir(), "jobs.index")

	res, err := b.Run(context.Background(), builder.Options{OutPath: out, Upload: true})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Jobs)
	assert.Equal(t, "hash", res.ModelID)
	assert.Equal(t, out, store.uploaded)

	ix, err := vectorindex.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 6, ix.Len())
}

func TestRunValidatesOptions(t *testing.T) {
	b := builder.New(staticSource{records: jobs(2)}, &hashEmbedder{}, nil, nil)

	_, err := b.Run(context.Background(), builder.Options{})
	require.Error(t, err)

	_, err = b.Run(context.Background(), builder.Options{OutPath: filepath.Join(t.TempDir(), "x"), Upload: true})
	require.ErrorContains(t, err, "without an object store")

	_, err = b.Run(context.Background(), builder.Options{OutPath: filepath.Join(t.TempDir(), "x"), Incremental: true})
	require.ErrorContains(t, err, "without an object store")
}

func TestRunUploadFailure(t *testing.T) {
	store := &recordingStore{err: errors.New("access denied")}
	b := builder.New(staticSource{records: jobs(2)}, &hashEmbedder{}, store, nil)

	_, err := b.Run(context.Background(), builder.Options{OutPath: filepath.Join(t.TempDir(), "jobs.index"), Upload: true})
	require.ErrorContains(t, err, "upload index")
}

// publishIndex builds an index over records and returns the saved blob path.
func publishIndex(t *testing.T, records []model.JobRecord) string {
	t.Helper()
	b := builder.New(staticSource{records: records}, &hashEmbedder{}, nil, nil)
	path := filepath.Join(t.TempDir(), "published.index")
	_, err := b.Run(context.Background(), builder.Options{OutPath: path})
	require.NoError(t, err)
	return path
}

func assertSelfHits(t *testing.T, ix *vectorindex.Index, records []model.JobRecord) {
	t.Helper()
	for i, r := range records {
		hits, err := ix.Search(vectorindex.Normalize(hashVec(r.EmbeddingText())), 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, i, hits[0].Position, "row %d", i)
	}
}

func TestRunIncrementalAppendsNewRows(t *testing.T) {
	records := jobs(9)
	store := &recordingStore{published: publishIndex(t, records[:6])}
	emb := &hashEmbedder{}
	b := builder.New(staticSource{records: records}, emb, store, nil)
	out := filepath.Join(t.TempDir(), "jobs.index")

	res, err := b.Run(context.Background(), builder.Options{OutPath: out, Upload: true, Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 9, res.Jobs)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 3, emb.calls(), "only unindexed rows are embedded")
	assert.Equal(t, out, store.uploaded)

	ix, err := vectorindex.LoadFile(out)
	require.NoError(t, err)
	require.Equal(t, 9, ix.Len())
	assertSelfHits(t, ix, records)
}

func TestRunIncrementalNothingNew(t *testing.T) {
	records := jobs(4)
	store := &recordingStore{published: publishIndex(t, records)}
	emb := &hashEmbedder{}
	b := builder.New(staticSource{records: records}, emb, store, nil)

	res, err := b.Run(context.Background(), builder.Options{
		OutPath: filepath.Join(t.TempDir(), "jobs.index"), Upload: true, Incremental: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Jobs)
	assert.Zero(t, res.Added)
	assert.Zero(t, emb.calls())
	assert.Empty(t, store.uploaded)
}

func TestRunIncrementalWithoutPublishedIndexBuildsFromScratch(t *testing.T) {
	records := jobs(5)
	store := &recordingStore{}
	b := builder.New(staticSource{records: records}, &hashEmbedder{}, store, nil)
	out := filepath.Join(t.TempDir(), "jobs.index")

	res, err := b.Run(context.Background(), builder.Options{OutPath: out, Upload: true, Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Added)
	assert.Equal(t, out, store.uploaded)

	ix, err := vectorindex.LoadFile(out)
	require.NoError(t, err)
	assertSelfHits(t, ix, records)
}

func TestRunIncrementalRejectsShrunkCatalog(t *testing.T) {
	records := jobs(6)
	store := &recordingStore{published: publishIndex(t, records)}
	b := builder.New(staticSource{records: records[:4]}, &hashEmbedder{}, store, nil)

	_, err := b.Run(context.Background(), builder.Options{
		OutPath: filepath.Join(t.TempDir(), "jobs.index"), Upload: true, Incremental: true,
	})
	require.ErrorContains(t, err, "run a full build")
	assert.Empty(t, store.uploaded)
}
