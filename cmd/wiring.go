package main

import (
	"context"

	"go.uber.org/zap"

	"jobmate/recommender-service/internal/config"
	"jobmate/recommender-service/internal/embeddings"
	"jobmate/recommender-service/internal/remote"
	"jobmate/recommender-service/internal/vectorindex"
)

func newRemoteStore(cfg *config.Config, log *zap.Logger) (*remote.MinioStore, error) {
	return remote.NewMinioStore(remote.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.IndexBucket,
		Key:       cfg.IndexKey,
	}, log)
}

// newEmbedder builds the embeddings provider. cacheSize overrides the
// configured query cache; the builder embeds every job once and passes 0.
func newEmbedder(ctx context.Context, cfg *config.Config, cacheSize int, log *zap.Logger) (embeddings.Provider, error) {
	return embeddings.NewFromConfig(ctx, &embeddings.Config{
		Provider:  cfg.EmbeddingsProvider,
		Model:     cfg.EmbeddingsModel,
		APIKey:    cfg.EmbeddingsAPIKey,
		BaseURL:   cfg.EmbeddingsBaseURL,
		CacheSize: cacheSize,
	}, log)
}

func indexOptions(cfg *config.Config) []vectorindex.Option {
	return []vectorindex.Option{
		vectorindex.WithM(cfg.HNSWM),
		vectorindex.WithEfConstruction(cfg.HNSWEfConstruction),
		vectorindex.WithEfSearch(cfg.HNSWEfSearch),
	}
}
