package vectorindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

const formatVersion = 1

// ErrCorrupt is returned when a persisted index fails validation on read.
var ErrCorrupt = errors.New("corrupt index file")

type persisted struct {
	Format         int         `msgpack:"format"`
	Dim            int         `msgpack:"dim"`
	M              int         `msgpack:"m"`
	EfConstruction int         `msgpack:"ef_construction"`
	EfSearch       int         `msgpack:"ef_search"`
	Seed           int64       `msgpack:"seed"`
	Entry          int32       `msgpack:"entry"`
	MaxLevel       int         `msgpack:"max_level"`
	Vectors        [][]float32 `msgpack:"vectors"`
	Levels         []int       `msgpack:"levels"`
	Links          [][][]int32 `msgpack:"links"`
}

// Write serializes the full graph so that a Read index answers every query
// exactly like the one that was written.
func (ix *Index) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	p := persisted{
		Format:         formatVersion,
		Dim:            ix.dim,
		M:              ix.cfg.m,
		EfConstruction: ix.cfg.efConstruction,
		EfSearch:       ix.cfg.efSearch,
		Seed:           ix.cfg.seed,
		Entry:          ix.entry,
		MaxLevel:       ix.maxLevel,
		Vectors:        ix.vectors,
		Levels:         ix.levels,
		Links:          ix.links,
	}
	if err := msgpack.NewEncoder(bw).Encode(&p); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return bw.Flush()
}

// Read deserializes an index written by Write. Search-time options passed
// here override the persisted ones.
func Read(r io.Reader, opts ...Option) (*Index, error) {
	var p persisted
	if err := msgpack.NewDecoder(bufio.NewReader(r)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	base := []Option{WithM(p.M), WithEfConstruction(p.EfConstruction), WithEfSearch(p.EfSearch), WithSeed(p.Seed)}
	cfg := newConfig(append(base, opts...))

	return &Index{
		dim:      p.Dim,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.seed + int64(len(p.Vectors)))),
		vectors:  p.Vectors,
		levels:   p.Levels,
		links:    p.Links,
		entry:    p.Entry,
		maxLevel: p.MaxLevel,
	}, nil
}

func (p *persisted) validate() error {
	if p.Format != formatVersion {
		return fmt.Errorf("%w: unsupported format %d", ErrCorrupt, p.Format)
	}
	if p.Dim <= 0 {
		return fmt.Errorf("%w: dim %d", ErrCorrupt, p.Dim)
	}
	n := len(p.Vectors)
	if len(p.Levels) != n || len(p.Links) != n {
		return fmt.Errorf("%w: %d vectors, %d levels, %d link lists", ErrCorrupt, n, len(p.Levels), len(p.Links))
	}
	if n == 0 {
		if p.Entry != -1 {
			return fmt.Errorf("%w: entry %d in empty index", ErrCorrupt, p.Entry)
		}
		return nil
	}
	if p.MaxLevel < 0 {
		return fmt.Errorf("%w: max level %d", ErrCorrupt, p.MaxLevel)
	}
	if p.Entry < 0 || int(p.Entry) >= n || p.Levels[p.Entry] != p.MaxLevel {
		return fmt.Errorf("%w: bad entry point %d", ErrCorrupt, p.Entry)
	}
	for i, v := range p.Vectors {
		if len(v) != p.Dim {
			return fmt.Errorf("%w: vector %d has dim %d", ErrCorrupt, i, len(v))
		}
		if p.Levels[i] < 0 || p.Levels[i] > p.MaxLevel {
			return fmt.Errorf("%w: node %d has level %d, max %d", ErrCorrupt, i, p.Levels[i], p.MaxLevel)
		}
		if len(p.Links[i]) != p.Levels[i]+1 {
			return fmt.Errorf("%w: node %d has %d layers, level %d", ErrCorrupt, i, len(p.Links[i]), p.Levels[i])
		}
		for l, layer := range p.Links[i] {
			for _, nb := range layer {
				if nb < 0 || int(nb) >= n || p.Levels[nb] < l {
					return fmt.Errorf("%w: node %d links to %d on level %d", ErrCorrupt, i, nb, l)
				}
			}
		}
	}
	return nil
}

// SaveFile writes the index to path through a temp file and rename so a
// reader never sees a partial file.
func (ix *Index) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := ix.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile reads an index from path.
func LoadFile(path string, opts ...Option) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, opts...)
}
