package recommender_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/recommender-service/internal/catalog"
	"jobmate/recommender-service/internal/extract"
	"jobmate/recommender-service/internal/model"
	"jobmate/recommender-service/internal/recommender"
	"jobmate/recommender-service/internal/snapshot"
	"jobmate/recommender-service/internal/vectorindex"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) ModelID() string { return "fake" }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

func ptr[T any](v T) *T { return &v }

// publish stores a snapshot whose vectors are the given 2-dim directions.
func publish(t *testing.T, store *snapshot.Store, vecs [][]float32, records []model.JobRecord) {
	t.Helper()
	ix, err := vectorindex.New(2)
	require.NoError(t, err)
	for _, v := range vecs {
		_, err := ix.Add(vectorindex.Normalize(v))
		require.NoError(t, err)
	}
	snap, err := snapshot.New(ix, catalog.New(records), now)
	require.NoError(t, err)
	store.Swap(snap)
}

func newService(store *snapshot.Store, emb *fakeEmbedder, topN int) *recommender.Service {
	ex := extract.NewDictionaryExtractor([]string{"python", "sql", "go"})
	return recommender.NewService(store, emb, ex, recommender.Options{
		TopN: topN,
		Now:  func() time.Time { return now },
	}, nil)
}

func TestRecommend_WarmingUpBeforeFirstSnapshot(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	svc := newService(snapshot.NewStore(), emb, 0)

	recs, err := svc.Recommend(context.Background(), "Python developer")
	require.ErrorIs(t, err, recommender.ErrWarmingUp)
	assert.Nil(t, recs)
	assert.Zero(t, emb.calls, "no embedding work before the index is loaded")
	assert.Equal(t, recommender.WarmingUpMessage, err.Error())
}

func TestRecommend_BlankResumeIsValidationError(t *testing.T) {
	svc := newService(snapshot.NewStore(), &fakeEmbedder{}, 0)

	_, err := svc.Recommend(context.Background(), "  \n ")
	var ve *recommender.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestRecommend_RanksAndPresents(t *testing.T) {
	store := snapshot.NewStore()
	created := now.Add(-48 * time.Hour).Format(time.RFC3339)
	records := []model.JobRecord{
		{Title: "Data Engineer", Company: "Acme", Skills: "Python, SQL", ExperienceLevel: "3-5 years",
			SalaryMin: ptr(50000.0), Link: "https: acme.io/jobs/1"},
		{Title: "Java Dev", Company: "Globex", Skills: "Java", Link: "hr@globex.com"},
		{Title: "Go Dev", Company: "Initech", Skills: "Go, Kubernetes"},
	}
	records[0] = records[0].WithCreatedDate(created)
	publish(t, store, [][]float32{{1, 0}, {1, 0.2}, {0, 1}}, records)

	svc := newService(store, &fakeEmbedder{vec: vectorindex.Normalize([]float32{1, 0.1})}, 0)
	recs, err := svc.Recommend(context.Background(), "Skills: Python, SQL. 4 years of experience")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	top := recs[0]
	assert.Equal(t, "Data Engineer", top.JobTitle)
	assert.Equal(t, "Acme", top.Company)
	assert.Equal(t, "3-5 years", top.Experience)
	assert.Equal(t, 100.0, top.MatchPercentage)
	assert.Equal(t, "https://acme.io/jobs/1", top.JobLink)
	assert.Equal(t, created, top.CreatedDate)
	require.NotNil(t, top.SalaryMin)
	assert.Equal(t, 50000.0, *top.SalaryMin)
	assert.Nil(t, top.SalaryMax)

	assert.Equal(t, "Java Dev", recs[1].JobTitle)
	assert.Equal(t, "mailto:hr@globex.com", recs[1].JobLink)
	assert.Equal(t, "Go Dev", recs[2].JobTitle)
	assert.Less(t, recs[2].MatchPercentage, recs[1].MatchPercentage)

	b, err := json.Marshal(recs[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_title":"Java Dev","company":"Globex","location":"","experience":"",
		"skills":"Java","salary_min":null,"salary_max":null,"match_percentage":`+jsonNumber(recs[1].MatchPercentage)+`,
		"created_date":"","job_link":"mailto:hr@globex.com"}`, string(b))
}

func TestRecommend_TruncatesToTopN(t *testing.T) {
	store := snapshot.NewStore()
	vecs := make([][]float32, 30)
	records := make([]model.JobRecord, 30)
	for i := range vecs {
		vecs[i] = []float32{1, float32(i) / 10}
		records[i] = model.JobRecord{Title: "job"}
	}
	publish(t, store, vecs, records)

	svc := newService(store, &fakeEmbedder{vec: []float32{1, 0}}, 5)
	recs, err := svc.Recommend(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}

func TestRecommend_EmbeddingFailure(t *testing.T) {
	store := snapshot.NewStore()
	publish(t, store, [][]float32{{1, 0}}, []model.JobRecord{{Title: "a"}})

	svc := newService(store, &fakeEmbedder{err: errors.New("quota")}, 0)
	_, err := svc.Recommend(context.Background(), "resume")
	require.ErrorContains(t, err, "embed resume")
}

func TestRecommend_DimensionMismatch(t *testing.T) {
	store := snapshot.NewStore()
	publish(t, store, [][]float32{{1, 0}}, []model.JobRecord{{Title: "a"}})

	svc := newService(store, &fakeEmbedder{vec: []float32{1, 0, 0}}, 0)
	_, err := svc.Recommend(context.Background(), "resume")
	require.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestRecommend_UsesSnapshotHeldAtQueryStart(t *testing.T) {
	store := snapshot.NewStore()
	publish(t, store, [][]float32{{1, 0}}, []model.JobRecord{{Title: "old"}})

	emb := &swappingEmbedder{store: store, t: t}
	ex := extract.NewDictionaryExtractor(nil)
	svc := recommender.NewService(store, emb, ex, recommender.Options{}, nil)

	recs, err := svc.Recommend(context.Background(), "resume")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "old", recs[0].JobTitle)
}

// swappingEmbedder publishes a new snapshot while the query is in flight.
type swappingEmbedder struct {
	store *snapshot.Store
	t     *testing.T
}

func (s *swappingEmbedder) ModelID() string { return "swap" }

func (s *swappingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	publish(s.t, s.store, [][]float32{{1, 0}, {0, 1}}, []model.JobRecord{{Title: "new"}, {Title: "new"}})
	return []float32{1, 0}, nil
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestRecommend_SkipsHitsOutsideCatalog(t *testing.T) {
	store := snapshot.NewStore()
	ix, err := vectorindex.New(2)
	require.NoError(t, err)
	for _, v := range [][]float32{{1, 0}, {0, 1}} {
		_, err := ix.Add(vectorindex.Normalize(v))
		require.NoError(t, err)
	}
	snap, err := snapshot.New(ix, catalog.New([]model.JobRecord{{Title: "Backend"}, {Title: "Frontend"}}), now)
	require.NoError(t, err)
	store.Swap(snap)

	// A row with no catalog entry, closest to the query.
	_, err = ix.Add(vectorindex.Normalize([]float32{1, 0.05}))
	require.NoError(t, err)

	svc := newService(store, &fakeEmbedder{vec: vectorindex.Normalize([]float32{1, 0.05})}, 0)
	recs, err := svc.Recommend(context.Background(), "Backend engineer")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Backend", recs[0].JobTitle)
	assert.Equal(t, "Frontend", recs[1].JobTitle)
}
