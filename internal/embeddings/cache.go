package embeddings

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// CachedProvider keeps the most recently embedded texts in an LRU keyed by
// the xxhash of model and text.
type CachedProvider struct {
	inner  Provider
	cache  *lru.Cache[uint64, []float32]
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCached wraps p with an LRU of the given size.
func NewCached(p Provider, size int, logger *zap.Logger) (*CachedProvider, error) {
	cache, err := lru.New[uint64, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{inner: p, cache: cache, logger: logger}, nil
}

func (c *CachedProvider) ModelID() string { return c.inner.ModelID() }

// Embed returns a copy of the cached vector when present.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return clone(v), nil
	}
	c.misses.Add(1)

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if evicted := c.cache.Add(key, clone(v)); evicted {
		c.logger.Debug("embedding cache eviction", zap.Int("size", c.cache.Len()))
	}
	return v, nil
}

// Stats reports cache hits and misses since construction.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedProvider) key(text string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(c.inner.ModelID())
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(text)
	return d.Sum64()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
