// Package ranker turns nearest-neighbor hits into a final job ranking by
// adding structured bonuses to the vector similarity.
//
// Everything here is a pure function of its inputs; the current time is
// passed in through Options so results are reproducible.
package ranker

import (
	"errors"
	"math"
	"sort"
	"time"

	"jobmate/recommender-service/internal/model"
)

const (
	DefaultTopN = 20

	SkillWeight      = 0.07
	ExperienceBonus  = 0.15
	RecencyMaxBoost  = 0.08
	RecencyDecayDays = 30
)

// ErrNoCandidates is returned when there is nothing to rank, which means the
// search had no index to run against.
var ErrNoCandidates = errors.New("no candidates to rank")

// Candidate is a catalog record paired with its similarity to the resume.
type Candidate struct {
	Job        model.JobRecord
	Similarity float32
}

// ScoredJob is a ranked result.
type ScoredJob struct {
	Job        model.JobRecord
	Similarity float32
	Score      float64
}

// Options controls a ranking pass.
type Options struct {
	TopN int       // <= 0 means DefaultTopN
	Now  time.Time // zero means time.Now()
}

// Score computes the composite score of one candidate.
//
//	score = similarity
//	      + 0.07 per resume skill found in the job's skills text
//	      + 0.15 when the resume's years appear in the job's experience level
//	      + RecencyBonus(createdAt)
func Score(profile model.ResumeProfile, c Candidate, now time.Time) float64 {
	score := float64(c.Similarity)
	score += SkillWeight * float64(SkillOverlap(profile.Skills, c.Job.Skills))
	if ExperienceMatches(profile.ExperienceYears, c.Job.ExperienceLevel) {
		score += ExperienceBonus
	}
	score += RecencyBonus(c.Job.CreatedAt, now)
	return score
}

// RecencyBonus decays linearly from RecencyMaxBoost for a job created now to
// zero at RecencyDecayDays. Age is counted in whole days; future dates count
// as age zero and a missing date earns nothing.
func RecencyBonus(createdAt *time.Time, now time.Time) float64 {
	if createdAt == nil {
		return 0
	}
	ageDays := math.Floor(now.Sub(*createdAt).Hours() / 24)
	if ageDays < 0 {
		ageDays = 0
	}
	return RecencyMaxBoost * math.Max(0, (RecencyDecayDays-ageDays)/RecencyDecayDays)
}

// Rank scores every candidate and returns at most TopN results ordered by
// score descending, then creation date descending (missing dates last), then
// catalog position ascending.
func Rank(profile model.ResumeProfile, candidates []Candidate, opts Options) ([]ScoredJob, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	topN := opts.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	scored := make([]ScoredJob, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredJob{
			Job:        c.Job,
			Similarity: c.Similarity,
			Score:      Score(profile, c, now),
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		return less(scored[i], scored[j])
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored, nil
}

func less(a, b ScoredJob) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	ac, bc := a.Job.CreatedAt, b.Job.CreatedAt
	switch {
	case ac != nil && bc == nil:
		return true
	case ac == nil && bc != nil:
		return false
	case ac != nil && bc != nil && !ac.Equal(*bc):
		return ac.After(*bc)
	}
	return a.Job.Position < b.Job.Position
}

// MatchPercentage converts a score for display. Scores are unbounded, so the
// value is clamped to 100 before rounding to two decimals.
func MatchPercentage(score float64) float64 {
	return math.Round(math.Min(score*100, 100)*100) / 100
}
