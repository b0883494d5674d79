// Package vectorindex implements an HNSW graph for approximate nearest-neighbor
// search over normalized embeddings using inner-product similarity.
//
// An Index is built by a single goroutine with Add and is safe for concurrent
// Search once building has finished. Snapshots never mutate a published index.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/viterin/vek/vek32"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidDimension  = errors.New("index dimension must be positive")
)

// Hit is one search result. Position is the row index the vector was added at.
type Hit struct {
	Position   int
	Similarity float32
}

// Index is an HNSW graph. Node ids are insertion positions.
type Index struct {
	dim int
	cfg config
	rng *rand.Rand

	vectors  [][]float32
	levels   []int
	links    [][][]int32 // links[node][level]
	entry    int32
	maxLevel int
}

// New returns an empty index for vectors of the given dimension.
func New(dim int, opts ...Option) (*Index, error) {
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}
	cfg := newConfig(opts)
	return &Index{
		dim:   dim,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.seed)),
		entry: -1,
	}, nil
}

func (ix *Index) Info() string {
	return fmt.Sprintf("HNSW(dim: %d, len: %d, config={%s})", ix.dim, ix.Len(), ix.cfg)
}

// Len returns the number of vectors in the index.
func (ix *Index) Len() int { return len(ix.vectors) }

// Dim returns the vector dimension.
func (ix *Index) Dim() int { return ix.dim }

// Add inserts vec and returns its position.
func (ix *Index) Add(vec []float32) (int, error) {
	if len(vec) != ix.dim {
		return 0, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vec), ix.dim)
	}

	v := make([]float32, len(vec))
	copy(v, vec)

	id := int32(len(ix.vectors))
	level := ix.randomLevel()
	ix.vectors = append(ix.vectors, v)
	ix.levels = append(ix.levels, level)
	ix.links = append(ix.links, make([][]int32, level+1))

	if ix.entry < 0 {
		ix.entry = id
		ix.maxLevel = level
		return int(id), nil
	}

	ep := ix.entry
	epDist := ix.distance(v, ep)
	for l := ix.maxLevel; l > level; l-- {
		ep, epDist = ix.greedyClosest(v, ep, epDist, l)
	}

	for l := min(level, ix.maxLevel); l >= 0; l-- {
		candidates := ix.searchLayer(v, ep, ix.cfg.efConstruction, l)
		neighbors := candidates
		if len(neighbors) > ix.cfg.m {
			neighbors = neighbors[:ix.cfg.m]
		}
		for _, nb := range neighbors {
			ix.links[id][l] = append(ix.links[id][l], nb.node)
			ix.links[nb.node][l] = append(ix.links[nb.node][l], id)
			if len(ix.links[nb.node][l]) > ix.maxConnections(l) {
				ix.prune(nb.node, l)
			}
		}
		ep = candidates[0].node
	}

	if level > ix.maxLevel {
		ix.entry = id
		ix.maxLevel = level
	}
	return int(id), nil
}

// Search returns up to k hits ordered by similarity descending, ties broken
// by position ascending. An empty index or k <= 0 yields no hits.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if k <= 0 || ix.entry < 0 {
		return nil, nil
	}

	ep := ix.entry
	epDist := ix.distance(query, ep)
	for l := ix.maxLevel; l > 0; l-- {
		ep, epDist = ix.greedyClosest(query, ep, epDist, l)
	}

	found := ix.searchLayer(query, ep, max(ix.cfg.efSearch, k), 0)
	if len(found) > k {
		found = found[:k]
	}

	hits := make([]Hit, len(found))
	for i, it := range found {
		hits[i] = Hit{Position: int(it.node), Similarity: -it.dist}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Position < hits[j].Position
	})
	return hits, nil
}

// distance is the negated inner product so that smaller is nearer.
func (ix *Index) distance(q []float32, node int32) float32 {
	return -vek32.Dot(q, ix.vectors[node])
}

func (ix *Index) maxConnections(level int) int {
	if level == 0 {
		return ix.cfg.mMax0
	}
	return ix.cfg.mMax
}

func (ix *Index) randomLevel() int {
	return int(math.Floor(-math.Log(1-ix.rng.Float64()) * ix.cfg.levelMultiplier))
}

func (ix *Index) greedyClosest(q []float32, ep int32, epDist float32, level int) (int32, float32) {
	for {
		changed := false
		for _, nb := range ix.links[ep][level] {
			if d := ix.distance(q, nb); d < epDist {
				ep, epDist = nb, d
				changed = true
			}
		}
		if !changed {
			return ep, epDist
		}
	}
}

// searchLayer runs a best-first search on one layer and returns at most ef
// items, nearest first.
func (ix *Index) searchLayer(q []float32, ep int32, ef, level int) []item {
	visited := bitset.New(uint(len(ix.vectors)))
	visited.Set(uint(ep))

	start := item{node: ep, dist: ix.distance(q, ep)}
	candidates := newMinQueue(start)
	results := newMaxQueue(start)

	for candidates.Len() > 0 {
		c := candidates.pop()
		if c.dist > results.peek().dist && results.Len() >= ef {
			break
		}
		for _, nb := range ix.links[c.node][level] {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))

			d := ix.distance(q, nb)
			if results.Len() < ef || d < results.peek().dist {
				it := item{node: nb, dist: d}
				candidates.push(it)
				results.push(it)
				if results.Len() > ef {
					results.pop()
				}
			}
		}
	}
	return results.drainAscending()
}

// prune keeps the nearest maxConnections links of node on level.
func (ix *Index) prune(node int32, level int) {
	links := ix.links[node][level]
	items := make([]item, len(links))
	for i, nb := range links {
		items[i] = item{node: nb, dist: ix.distance(ix.vectors[node], nb)}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].node < items[j].node
	})

	keep := ix.maxConnections(level)
	pruned := make([]int32, keep)
	for i := 0; i < keep; i++ {
		pruned[i] = items[i].node
	}
	ix.links[node][level] = pruned
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned as a copy.
func Normalize(v []float32) []float32 {
	norm := vek32.Norm(v)
	if norm == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	return vek32.MulNumber(v, 1/norm)
}
