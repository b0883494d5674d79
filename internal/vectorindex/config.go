package vectorindex

import (
	"fmt"
	"math"
)

const (
	DefaultM              = 32
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
	DefaultSeed           = 42
)

// Option configures an Index at construction time.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithM sets the graph connectivity: links kept per node on upper layers.
// Layer 0 keeps twice as many.
func WithM(m int) Option {
	return optionFunc(func(c *config) { c.m = m })
}

// WithEfConstruction sets the candidate list size used while inserting.
func WithEfConstruction(ef int) Option {
	return optionFunc(func(c *config) { c.efConstruction = ef })
}

// WithEfSearch sets the candidate list size used while searching. The
// effective breadth of a query is max(efSearch, k).
func WithEfSearch(ef int) Option {
	return optionFunc(func(c *config) { c.efSearch = ef })
}

// WithSeed fixes the level generator so builds are reproducible.
func WithSeed(seed int64) Option {
	return optionFunc(func(c *config) { c.seed = seed })
}

type config struct {
	m               int
	mMax            int
	mMax0           int
	efConstruction  int
	efSearch        int
	levelMultiplier float64
	seed            int64
}

func newConfig(opts []Option) config {
	c := config{
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearch:       DefaultEfSearch,
		seed:           DefaultSeed,
	}
	for _, opt := range opts {
		opt.apply(&c)
	}
	if c.m < 2 {
		c.m = 2
	}
	if c.efConstruction < c.m {
		c.efConstruction = c.m
	}
	if c.efSearch < 1 {
		c.efSearch = 1
	}
	c.mMax = c.m
	c.mMax0 = 2 * c.m
	c.levelMultiplier = 1 / math.Log(float64(c.m))
	return c
}

func (c config) String() string {
	return fmt.Sprintf("m: %d, mMax0: %d, efConstruction: %d, efSearch: %d, levelMultiplier: %.4f",
		c.m, c.mMax0, c.efConstruction, c.efSearch, c.levelMultiplier)
}
