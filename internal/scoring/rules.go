// Package scoring ranks filtered candidates with rule bonuses and an optional assistant pass.
package scoring

import (
	"strings"
	"time"

	"github.com/spigell/jobsieve/internal/jobs"
)

// Weights are the rule bonuses. All of them must be non-negative; RecencyWeight is in [0, 1].
type Weights struct {
	TitleMatchBonus     float64 `mapstructure:"title-match-bonus"`
	SeniorityMatchBonus float64 `mapstructure:"seniority-match-bonus"`
	EasyApplyBonus      float64 `mapstructure:"easy-apply-bonus"`
	RemoteBonus         float64 `mapstructure:"remote-bonus"`
	RecencyWeight       float64 `mapstructure:"recency-weight"`
}

func DefaultWeights() Weights {
	return Weights{
		TitleMatchBonus:     20,
		SeniorityMatchBonus: 15,
		EasyApplyBonus:      10,
		RemoteBonus:         10,
		RecencyWeight:       0.3,
	}
}

// Rules is the deterministic part of scoring.
type Rules struct {
	weights Weights
	target  Seniority
	now     func() time.Time
}

// NewRules builds a scorer. With an empty target any senior-or-above title earns the seniority bonus.
func NewRules(weights Weights, target Seniority, now func() time.Time) *Rules {
	if now == nil {
		now = time.Now
	}
	return &Rules{weights: weights, target: target, now: now}
}

// Score returns the clamped rule score of c. keywords are the required and boost terms;
// each distinct term found in the title adds the title bonus once.
func (r *Rules) Score(c jobs.Candidate, keywords []string) float64 {
	title := strings.ToLower(c.Title)
	score := 0.0

	for _, term := range distinctTerms(keywords) {
		if strings.Contains(title, term) {
			score += r.weights.TitleMatchBonus
		}
	}

	if r.seniorityMatches(c.Title) {
		score += r.weights.SeniorityMatchBonus
	}

	if c.IsEasyApplyLike {
		score += r.weights.EasyApplyBonus
	}

	if c.WorkplaceType == jobs.WorkplaceRemote {
		score += r.weights.RemoteBonus
	}

	score += RecencyBonus(c.PostedTime, r.weights.RecencyWeight, r.now())

	return jobs.ClampScore(score)
}

// ScoreAll scores the batch and returns it sorted by score, highest first.
func (r *Rules) ScoreAll(candidates []jobs.Candidate, keywords []string) []jobs.ScoredCandidate {
	scored := make([]jobs.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, jobs.NewRuleScored(c, r.Score(c, keywords)))
	}
	jobs.SortByFinalScore(scored)
	return scored
}

func (r *Rules) seniorityMatches(title string) bool {
	inferred := InferSeniority(title)
	if r.target == SeniorityUnknown {
		return inferred.IsSeniorOrAbove()
	}
	return inferred == r.target
}

func distinctTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
