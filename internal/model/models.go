// Package model defines shared data structures for the recommender service.
package model

import (
	"strings"
	"time"
)

// JobRecord mirrors one row of the jobs table, in index row order.
// Position is the row index of the record's vector in the paired index.
type JobRecord struct {
	Position        int
	Title           string
	Company         string
	Location        string
	ExperienceLevel string
	Skills          string // free text, matched case-insensitively
	SalaryMin       *float64
	SalaryMax       *float64
	CreatedDate     string     // raw value as stored
	CreatedAt       *time.Time // nil when CreatedDate is absent or unparseable
	Link            string

	// Only used to build the text that gets embedded.
	Category         string
	Requirements     string
	Responsibilities string
	Description      string
}

// ResumeProfile is the structured view of a resume used for ranking.
type ResumeProfile struct {
	Skills          []string // lowercase, deduplicated
	ExperienceYears *int
	Embedding       []float32
}

var createdDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07", // postgres timestamptz::text
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseCreatedDate parses the stored created_date value. Naive timestamps are
// read as UTC. ok is false for empty or unparseable input.
func ParseCreatedDate(raw string) (t time.Time, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range createdDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// WithCreatedDate sets CreatedDate and derives CreatedAt from it.
func (j JobRecord) WithCreatedDate(raw string) JobRecord {
	j.CreatedDate = raw
	j.CreatedAt = nil
	if t, ok := ParseCreatedDate(raw); ok {
		j.CreatedAt = &t
	}
	return j
}

// EmbeddingText renders the record the same way for indexing and auditing.
func (j JobRecord) EmbeddingText() string {
	var b strings.Builder
	b.WriteString("\nJob Title: " + j.Title)
	b.WriteString("\nCategory: " + j.Category)
	b.WriteString("\nExperience Level: " + j.ExperienceLevel)
	b.WriteString("\nSkills: " + j.Skills)
	b.WriteString("\nRequirements: " + j.Requirements)
	b.WriteString("\nResponsibilities: " + j.Responsibilities)
	b.WriteString("\nJob Description: " + j.Description)
	b.WriteString("\n")
	return b.String()
}
