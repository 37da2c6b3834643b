package filtering

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
)

// SeenSet remembers natural keys observed during one invocation. Share a single set across
// all searches of the invocation to deduplicate between keywords.
type SeenSet struct {
	mu   sync.Mutex
	keys map[jobs.Key]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[jobs.Key]struct{})}
}

// Add records key and reports whether it was new.
func (s *SeenSet) Add(key jobs.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

type dedupFilter struct {
	seen   *SeenSet
	logger *zap.Logger
}

// NewDedup keeps the first occurrence of each natural key. A nil set starts a fresh one.
func NewDedup(seen *SeenSet, logger *zap.Logger) Filter {
	if seen == nil {
		seen = NewSeenSet()
	}
	return &dedupFilter{seen: seen, logger: orNop(logger)}
}

func (f *dedupFilter) Name() string { return "dedup" }

func (f *dedupFilter) IsEnabled() bool { return true }

func (f *dedupFilter) Validate() error { return nil }

func (f *dedupFilter) Apply(_ context.Context, c *jobs.Candidates) (*jobs.Candidates, Step, error) {
	initial := c.Len()

	excluded := c.Keep(func(candidate jobs.Candidate) bool {
		return f.seen.Add(candidate.Key())
	})
	if len(excluded) > 0 {
		f.logger.Debug("excluding duplicate candidates",
			zap.Strings("excluded_candidates", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *dedupFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: true,
		Details: map[string]string{"seen": strconv.Itoa(f.seen.Len())},
	}
}
