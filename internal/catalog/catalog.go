// Package catalog holds the ordered job records that pair with the rows of a
// vector index, and the sources they are loaded from.
package catalog

import (
	"context"

	"jobmate/recommender-service/internal/model"
)

// Source loads the full ordered set of job records. The order must match
// the row order of the index built from the same data.
type Source interface {
	Load(ctx context.Context) ([]model.JobRecord, error)
}

// Catalog is an immutable, position-addressed list of job records.
type Catalog struct {
	records []model.JobRecord
}

// New copies records into a Catalog and stamps each with its position.
func New(records []model.JobRecord) *Catalog {
	out := make([]model.JobRecord, len(records))
	for i, r := range records {
		r.Position = i
		out[i] = r
	}
	return &Catalog{records: out}
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// At returns the record at pos. ok is false when pos is out of range.
func (c *Catalog) At(pos int) (model.JobRecord, bool) {
	if c == nil || pos < 0 || pos >= len(c.records) {
		return model.JobRecord{}, false
	}
	return c.records[pos], true
}

// Records returns a copy of all records in position order.
func (c *Catalog) Records() []model.JobRecord {
	if c == nil {
		return nil
	}
	out := make([]model.JobRecord, len(c.records))
	copy(out, c.records)
	return out
}
