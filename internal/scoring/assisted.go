package scoring

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/jobsieve/internal/ai"
	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/logger"
)

const defaultConcurrency = 4

// weightTolerance absorbs float noise when checking that blend weights add up to one.
const weightTolerance = 1e-9

// Blend sets how rule and assistant scores combine into the final score.
type Blend struct {
	RuleWeight     float64 `mapstructure:"rule-weight"`
	AssistedWeight float64 `mapstructure:"assisted-weight"`
}

func DefaultBlend() Blend {
	return Blend{RuleWeight: 0.4, AssistedWeight: 0.6}
}

// Validate rejects weights that are negative or do not sum to 1.
func (b Blend) Validate() error {
	if b.RuleWeight < 0 || b.AssistedWeight < 0 || math.IsNaN(b.RuleWeight) || math.IsNaN(b.AssistedWeight) {
		return fmt.Errorf("blend weights must be non-negative, got %v/%v", b.RuleWeight, b.AssistedWeight)
	}
	if math.Abs(b.RuleWeight+b.AssistedWeight-1) > weightTolerance {
		return fmt.Errorf("rule weight %v and assisted weight %v must sum to 1.0", b.RuleWeight, b.AssistedWeight)
	}
	return nil
}

// Apply blends the two scores and rounds to two decimals.
func (b Blend) Apply(rule, assisted float64) float64 {
	blended := b.RuleWeight*rule + b.AssistedWeight*assisted
	return jobs.ClampScore(math.Round(blended*100) / 100)
}

// Refiner asks the assistant about every candidate that has a description and blends the answers
// into the final score. Calls run concurrently and fail independently.
type Refiner struct {
	assistant   ai.Assistant
	profile     ai.Profile
	blend       Blend
	concurrency int
	logger      *zap.Logger
}

func NewRefiner(assistant ai.Assistant, profile ai.Profile, blend Blend, concurrency int, logger *zap.Logger) *Refiner {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{
		assistant:   assistant,
		profile:     profile,
		blend:       blend,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Refine returns a new slice sorted by final score. A failed call leaves that candidate with its
// rule score; candidates without a description are never sent.
func (r *Refiner) Refine(ctx context.Context, batch []jobs.ScoredCandidate) []jobs.ScoredCandidate {
	result := make([]jobs.ScoredCandidate, len(batch))
	copy(result, batch)

	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for i := range result {
		if result[i].Candidate.DescriptionSnippet == "" {
			continue
		}

		g.Go(func() error {
			scored := result[i]
			assessment, err := r.assistant.Evaluate(ctx, scored.Candidate, r.profile)
			if err != nil {
				r.logger.Warn("assisted scoring failed, keeping rule score",
					append(logger.CandidateFields(scored.Candidate),
						zap.Float64("rule_score", scored.RuleScore),
						zap.Error(err),
					)...,
				)
				return nil
			}

			final := r.blend.Apply(scored.RuleScore, assessment.Score)
			result[i] = scored.WithAssisted(assessment.Score, assessment.Reasoning, final)
			return nil
		})
	}
	_ = g.Wait()

	jobs.SortByFinalScore(result)
	return result
}
