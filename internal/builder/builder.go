// Package builder produces the index blob the service serves: it embeds
// catalog jobs, adds them to the HNSW graph in catalog order, saves it, and
// uploads it to the object store.
//
// Row N of the index is the embedding of row N of the catalog query, so the
// builder reads the catalog through the same catalog.Source the refresher
// uses. New jobs sort after existing ones, which lets an incremental build
// embed only the rows past the end of the published index.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmate/recommender-service/internal/catalog"
	"jobmate/recommender-service/internal/model"
	"jobmate/recommender-service/internal/embeddings"
	"jobmate/recommender-service/internal/remote"
	"jobmate/recommender-service/internal/vectorindex"
)

const defaultConcurrency = 4

// Options controls an index build.
type Options struct {
	OutPath      string
	Upload       bool
	Incremental  bool // append unindexed rows to the published index
	Concurrency  int  // parallel embedding requests
	IndexOptions []vectorindex.Option
}

// Result summarizes a finished build.
type Result struct {
	Jobs    int
	Added   int // rows embedded by this run
	Dim     int
	Path    string
	ModelID string
	Took    time.Duration
}

// Builder wires the catalog, the embedding model and the object store.
type Builder struct {
	source   catalog.Source
	embedder embeddings.Provider
	remote   remote.Store
	logger   *zap.Logger
}

// New returns a Builder. rs may be nil when uploads are not needed.
func New(src catalog.Source, embedder embeddings.Provider, rs remote.Store, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{source: src, embedder: embedder, remote: rs, logger: logger}
}

// Build embeds the catalog and returns the populated index.
func (b *Builder) Build(ctx context.Context, opts Options) (*vectorindex.Index, error) {
	records, err := b.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	b.logger.Info("embedding catalog", zap.Int("jobs", len(records)), zap.String("model", b.embedder.ModelID()))

	vectors, err := b.embed(ctx, records, 0, opts.Concurrency)
	if err != nil {
		return nil, err
	}
	ix, err := vectorindex.New(len(vectors[0]), opts.IndexOptions...)
	if err != nil {
		return nil, err
	}
	if err := b.add(ix, vectors); err != nil {
		return nil, err
	}
	return ix, nil
}

// Extend embeds the catalog rows that ix does not cover yet and appends them.
// It returns the number of rows added.
func (b *Builder) Extend(ctx context.Context, ix *vectorindex.Index, opts Options) (int, error) {
	records, err := b.loadCatalog(ctx)
	if err != nil {
		return 0, err
	}
	have := ix.Len()
	if len(records) < have {
		return 0, fmt.Errorf("catalog has %d jobs but the index has %d rows, run a full build", len(records), have)
	}
	fresh := records[have:]
	if len(fresh) == 0 {
		return 0, nil
	}
	b.logger.Info("embedding new jobs", zap.Int("new", len(fresh)), zap.Int("indexed", have))

	vectors, err := b.embed(ctx, fresh, have, opts.Concurrency)
	if err != nil {
		return 0, err
	}
	if err := b.add(ix, vectors); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// Run builds the index, writes it to opts.OutPath and optionally uploads it.
// With opts.Incremental the published blob is downloaded to opts.OutPath and
// extended; when nothing is published yet a full build runs instead, and
// when no row is new nothing is written or uploaded.
func (b *Builder) Run(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	if opts.OutPath == "" {
		return Result{}, fmt.Errorf("output path is required")
	}
	if (opts.Upload || opts.Incremental) && b.remote == nil {
		return Result{}, fmt.Errorf("upload or incremental build requested without an object store")
	}

	var (
		ix    *vectorindex.Index
		added int
		err   error
	)
	if opts.Incremental {
		ix, added, err = b.incremental(ctx, opts)
	} else {
		ix, err = b.Build(ctx, opts)
		if ix != nil {
			added = ix.Len()
		}
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Jobs:    ix.Len(),
		Added:   added,
		Dim:     ix.Dim(),
		Path:    opts.OutPath,
		ModelID: b.embedder.ModelID(),
	}
	if added == 0 {
		b.logger.Info("no new jobs to index", zap.Int("jobs", ix.Len()))
		res.Took = time.Since(start)
		return res, nil
	}

	if err := ix.SaveFile(opts.OutPath); err != nil {
		return Result{}, fmt.Errorf("save index: %w", err)
	}
	b.logger.Info("index saved", zap.String("path", opts.OutPath), zap.String("params", ix.Info()))

	if opts.Upload {
		if err := b.remote.Upload(ctx, opts.OutPath); err != nil {
			return Result{}, fmt.Errorf("upload index: %w", err)
		}
	}
	res.Took = time.Since(start)
	return res, nil
}

func (b *Builder) incremental(ctx context.Context, opts Options) (*vectorindex.Index, int, error) {
	err := b.remote.Fetch(ctx, opts.OutPath)
	if errors.Is(err, remote.ErrNotFound) {
		b.logger.Info("no published index, running a full build")
		ix, err := b.Build(ctx, opts)
		if err != nil {
			return nil, 0, err
		}
		return ix, ix.Len(), nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("fetch index: %w", err)
	}

	ix, err := vectorindex.LoadFile(opts.OutPath, opts.IndexOptions...)
	if err != nil {
		return nil, 0, fmt.Errorf("load published index: %w", err)
	}
	added, err := b.Extend(ctx, ix, opts)
	if err != nil {
		return nil, 0, err
	}
	return ix, added, nil
}

func (b *Builder) loadCatalog(ctx context.Context) ([]model.JobRecord, error) {
	records, err := b.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog is empty, nothing to index")
	}
	return records, nil
}

// embed returns the normalized embeddings of records in order. offset is the
// catalog position of records[0], used in error messages.
func (b *Builder) embed(ctx context.Context, records []model.JobRecord, offset, concurrency int) ([][]float32, error) {
	vectors := make([][]float32, len(records))
	g, gctx := errgroup.WithContext(ctx)
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	g.SetLimit(concurrency)
	for i := range records {
		g.Go(func() error {
			v, err := b.embedder.Embed(gctx, records[i].EmbeddingText())
			if err != nil {
				return fmt.Errorf("embed job %d (%s): %w", offset+i, records[i].Title, err)
			}
			vectors[i] = vectorindex.Normalize(v)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (b *Builder) add(ix *vectorindex.Index, vectors [][]float32) error {
	base := ix.Len()
	for i, v := range vectors {
		if _, err := ix.Add(v); err != nil {
			return fmt.Errorf("add job %d: %w", base+i, err)
		}
		if (i+1)%1000 == 0 {
			b.logger.Debug("index build progress", zap.Int("added", i+1), zap.Int("total", len(vectors)))
		}
	}
	return nil
}
