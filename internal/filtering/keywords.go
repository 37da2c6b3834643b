package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
)

type excludeKeywordsFilter struct {
	terms  []string
	logger *zap.Logger
}

// NewExcludeKeywords drops candidates whose title contains any of terms.
// Matching is a case-insensitive substring test, so partial words match too.
func NewExcludeKeywords(terms []string, logger *zap.Logger) Filter {
	return &excludeKeywordsFilter{terms: normalizeTerms(terms), logger: orNop(logger)}
}

func (f *excludeKeywordsFilter) Name() string { return "exclude_keywords" }

func (f *excludeKeywordsFilter) IsEnabled() bool { return true }

func (f *excludeKeywordsFilter) Validate() error { return nil }

func (f *excludeKeywordsFilter) Apply(_ context.Context, c *jobs.Candidates) (*jobs.Candidates, Step, error) {
	initial := c.Len()
	if len(f.terms) == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Keep(func(candidate jobs.Candidate) bool {
		return !containsAny(candidate.Title, f.terms)
	})
	if len(excluded) > 0 {
		f.logger.Debug("excluding candidates by title keywords",
			zap.Strings("terms", f.terms),
			zap.Strings("excluded_candidates", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *excludeKeywordsFilter) Status() Status {
	details := map[string]string{}
	if len(f.terms) > 0 {
		details["terms"] = strings.Join(f.terms, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}

type requireKeywordsFilter struct {
	enabled bool
	reason  string
	terms   []string
	logger  *zap.Logger
}

// NewRequireKeywords keeps candidates mentioning at least one of terms in the title or the
// description snippet. An empty term list makes the step a no-op.
func NewRequireKeywords(terms []string, logger *zap.Logger) Filter {
	normalized := normalizeTerms(terms)
	f := &requireKeywordsFilter{enabled: true, terms: normalized, logger: orNop(logger)}
	if len(normalized) == 0 {
		f.Disable("no required keywords configured")
	}
	return f
}

func (f *requireKeywordsFilter) Name() string { return "require_keywords" }

func (f *requireKeywordsFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *requireKeywordsFilter) IsEnabled() bool { return f.enabled }

func (f *requireKeywordsFilter) Validate() error { return nil }

func (f *requireKeywordsFilter) Apply(_ context.Context, c *jobs.Candidates) (*jobs.Candidates, Step, error) {
	initial := c.Len()
	if len(f.terms) == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Keep(func(candidate jobs.Candidate) bool {
		return containsAny(candidate.Title, f.terms) || containsAny(candidate.DescriptionSnippet, f.terms)
	})
	if len(excluded) > 0 {
		f.logger.Debug("excluding candidates without required keywords",
			zap.Strings("terms", f.terms),
			zap.Strings("excluded_candidates", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *requireKeywordsFilter) Status() Status {
	details := map[string]string{}
	if len(f.terms) > 0 {
		details["terms"] = strings.Join(f.terms, ",")
	}
	return Status{Name: f.Name(), Enabled: f.enabled, Reason: f.reason, Details: details}
}

func normalizeTerms(terms []string) []string {
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			normalized = append(normalized, term)
		}
	}
	return normalized
}

// containsAny expects lower-cased terms.
func containsAny(text string, terms []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
