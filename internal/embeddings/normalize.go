package embeddings

import (
	"context"

	"jobmate/recommender-service/internal/vectorindex"
)

type normalized struct {
	inner Provider
}

// Normalized wraps p so every vector it returns has unit L2 norm, which makes
// inner product equal to cosine similarity.
func Normalized(p Provider) Provider {
	if _, ok := p.(*normalized); ok {
		return p
	}
	return &normalized{inner: p}
}

func (n *normalized) ModelID() string { return n.inner.ModelID() }

func (n *normalized) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := n.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return vectorindex.Normalize(v), nil
}
