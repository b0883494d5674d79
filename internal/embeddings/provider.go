// Package embeddings turns text into the vectors stored in and queried against
// the job index.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Provider embeds text into a fixed-length float vector.
//
// Implementations must be deterministic for the same input text and model.
type Provider interface {
	ModelID() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	CacheSize int
}

// NewFromConfig returns a provider that normalizes its output and, when
// CacheSize > 0, keeps recent query vectors in memory.
func NewFromConfig(ctx context.Context, cfg *Config, logger *zap.Logger) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}

	var p Provider
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		p = NewOpenAI(cfg)
	case "gemini":
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p = g
	case "":
		return nil, fmt.Errorf("embeddings provider is not configured (set RECOMMENDER_EMBEDDINGS_PROVIDER)")
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Provider)
	}

	p = Normalized(p)
	if cfg.CacheSize > 0 {
		cached, err := NewCached(p, cfg.CacheSize, logger)
		if err != nil {
			return nil, err
		}
		p = cached
	}
	return p, nil
}
