package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/recommender-service/internal/builder"
	"jobmate/recommender-service/internal/catalog"
	"jobmate/recommender-service/internal/db"
	"jobmate/recommender-service/internal/refresher"
)

var (
	buildOut         string
	buildNoUpload    bool
	buildIncremental bool
	buildConcurrency int
)

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Embed the jobs catalog and publish a new index",
	Long: `build-index reads the jobs table in catalog order, embeds every job, writes
the HNSW index to --out and uploads it to the index bucket. With --incremental
the published index is downloaded and only jobs past its last row are embedded
and appended. Running replicas pick it up on their next check, or immediately
via POST /admin/reload-index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(v)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx := cmd.Context()

		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		embedder, err := newEmbedder(ctx, cfg, 0, log)
		if err != nil {
			return err
		}

		var b *builder.Builder
		if buildNoUpload && !buildIncremental {
			b = builder.New(catalog.NewPostgresSource(pool), embedder, nil, log)
		} else {
			rs, err := newRemoteStore(cfg, log)
			if err != nil {
				return err
			}
			b = builder.New(catalog.NewPostgresSource(pool), embedder, rs, log)
		}

		out := buildOut
		if out == "" {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return err
			}
			out = filepath.Join(cfg.DataDir, "build-"+refresher.IndexFileName)
		}

		res, err := b.Run(ctx, builder.Options{
			OutPath:      out,
			Upload:       !buildNoUpload,
			Incremental:  buildIncremental,
			Concurrency:  buildConcurrency,
			IndexOptions: indexOptions(cfg),
		})
		if err != nil {
			return err
		}
		log.Info("index built",
			zap.Int("jobs", res.Jobs),
			zap.Int("added", res.Added),
			zap.Int("dim", res.Dim),
			zap.String("model", res.ModelID),
			zap.String("path", res.Path),
			zap.Bool("uploaded", !buildNoUpload && res.Added > 0),
			zap.Duration("took", res.Took),
		)
		return nil
	},
}

func init() {
	f := buildIndexCmd.Flags()
	f.StringVar(&buildOut, "out", "", "output path (default <data_dir>/build-jobs.index)")
	f.BoolVar(&buildNoUpload, "no-upload", false, "write the index locally only")
	f.BoolVar(&buildIncremental, "incremental", false, "extend the published index with new jobs only")
	f.IntVar(&buildConcurrency, "concurrency", 4, "parallel embedding requests")
}
