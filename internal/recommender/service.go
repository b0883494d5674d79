// Package recommender contains the query path of the service: resume text in,
// ranked job recommendations out. It is transport-agnostic.
package recommender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmate/recommender-service/internal/embeddings"
	"jobmate/recommender-service/internal/extract"
	"jobmate/recommender-service/internal/ranker"
	"jobmate/recommender-service/internal/snapshot"
)

// WarmingUpMessage is the user-facing text of ErrWarmingUp.
const WarmingUpMessage = "Recommendation system is warming up. Please try again shortly."

// ErrWarmingUp is returned until an index snapshot has been published.
var ErrWarmingUp = errors.New(WarmingUpMessage)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Recommendation is the JSON shape returned to clients.
type Recommendation struct {
	JobTitle        string   `json:"job_title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	Experience      string   `json:"experience"`
	Skills          string   `json:"skills"`
	SalaryMin       *float64 `json:"salary_min"`
	SalaryMax       *float64 `json:"salary_max"`
	MatchPercentage float64  `json:"match_percentage"`
	CreatedDate     string   `json:"created_date"`
	JobLink         string   `json:"job_link"`
}

// Options tunes a Service.
type Options struct {
	TopN    int // results returned, default ranker.DefaultTopN
	SearchK int // neighbors fetched from the index, never below TopN
	Now     func() time.Time
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Service answers recommendation queries against the current snapshot.
type Service struct {
	store     *snapshot.Store
	embedder  embeddings.Provider
	extractor extract.Extractor
	opts      Options
	logger    *zap.Logger
}

// NewService returns a configured Service.
func NewService(store *snapshot.Store, embedder embeddings.Provider, extractor extract.Extractor, opts Options, logger *zap.Logger) *Service {
	if opts.TopN <= 0 {
		opts.TopN = ranker.DefaultTopN
	}
	if opts.SearchK < opts.TopN {
		opts.SearchK = opts.TopN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embedder: embedder, extractor: extractor, opts: opts, logger: logger}
}

// Recommend ranks the catalog against resumeText.
//
// Returns ErrWarmingUp when no snapshot is published yet, and a
// *ValidationError for blank input. The snapshot is read once, so a refresh
// that lands mid-query does not affect the result.
func (s *Service) Recommend(ctx context.Context, resumeText string) ([]Recommendation, error) {
	if strings.TrimSpace(resumeText) == "" {
		return nil, &ValidationError{Msg: "resume text is empty"}
	}

	snap, ok := s.store.Get()
	if !ok || snap.Len() == 0 {
		return nil, ErrWarmingUp
	}

	profile := s.extractor.Extract(resumeText)
	vec, err := s.embedder.Embed(ctx, extract.CleanText(resumeText))
	if err != nil {
		return nil, fmt.Errorf("embed resume: %w", err)
	}
	profile.Embedding = vec

	hits, err := snap.Index().Search(vec, s.opts.SearchK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	candidates := make([]ranker.Candidate, 0, len(hits))
	for _, h := range hits {
		job, ok := snap.Catalog().At(h.Position)
		if !ok {
			s.logger.Debug("search hit outside catalog",
				zap.Int("position", h.Position), zap.String("snapshot", snap.ID()))
			continue
		}
		candidates = append(candidates, ranker.Candidate{Job: job, Similarity: h.Similarity})
	}

	ranked, err := ranker.Rank(profile, candidates, ranker.Options{TopN: s.opts.TopN, Now: s.opts.Now()})
	if errors.Is(err, ranker.ErrNoCandidates) {
		return nil, ErrWarmingUp
	}
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, present(r))
	}

	s.logger.Debug("recommendations ranked",
		zap.String("snapshot", snap.ID()),
		zap.Int("hits", len(hits)),
		zap.Int("returned", len(out)),
		zap.Strings("skills", profile.Skills),
	)
	return out, nil
}

func present(r ranker.ScoredJob) Recommendation {
	j := r.Job
	return Recommendation{
		JobTitle:        j.Title,
		Company:         j.Company,
		Location:        j.Location,
		Experience:      j.ExperienceLevel,
		Skills:          j.Skills,
		SalaryMin:       j.SalaryMin,
		SalaryMax:       j.SalaryMax,
		MatchPercentage: ranker.MatchPercentage(r.Score),
		CreatedDate:     j.CreatedDate,
		JobLink:         CleanJobLink(j.Link),
	}
}
