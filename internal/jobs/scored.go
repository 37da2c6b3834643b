package jobs

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	MinScore = 0.0
	MaxScore = 100.0
)

// ClampScore bounds a score to [MinScore, MaxScore]. NaN becomes MinScore.
func ClampScore(v float64) float64 {
	if math.IsNaN(v) || v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// ScoredCandidate wraps an immutable Candidate with its relevance scores.
// AssistedScore is nil unless the scoring assistant was consulted and succeeded.
type ScoredCandidate struct {
	Candidate     Candidate `json:"candidate"`
	RuleScore     float64   `json:"ruleScore"`
	AssistedScore *float64  `json:"assistedScore,omitempty"`
	Reasoning     string    `json:"reasoning,omitempty"`
	FinalScore    float64   `json:"finalScore"`
}

// NewRuleScored builds a ScoredCandidate whose final score is the rule score.
func NewRuleScored(c Candidate, ruleScore float64) ScoredCandidate {
	ruleScore = ClampScore(ruleScore)
	return ScoredCandidate{Candidate: c, RuleScore: ruleScore, FinalScore: ruleScore}
}

// WithAssisted returns a copy carrying the assistant result and the blended final score.
func (s ScoredCandidate) WithAssisted(assisted float64, reasoning string, final float64) ScoredCandidate {
	assisted = ClampScore(assisted)
	s.AssistedScore = &assisted
	s.Reasoning = reasoning
	s.FinalScore = ClampScore(final)
	return s
}

// SortByFinalScore orders candidates by final score descending. Ties keep their input order.
func SortByFinalScore(scored []ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
}

// Status is the review state of a persisted candidate. The pipeline only ever writes StatusNew.
type Status string

const (
	StatusNew            Status = "new"
	StatusReviewed       Status = "reviewed"
	StatusRejected       Status = "rejected"
	StatusQueuedForApply Status = "queuedForApply"
	StatusApplied        Status = "applied"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusNew, StatusReviewed, StatusRejected, StatusQueuedForApply, StatusApplied:
		return st, nil
	}
	return "", fmt.Errorf("unknown candidate status %q", s)
}

// StoredCandidate is a persisted ScoredCandidate with its bookkeeping fields.
type StoredCandidate struct {
	ScoredCandidate
	Status      Status    `json:"status"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}
