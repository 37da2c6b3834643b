package filtering

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

// DefaultSeenTTL is how long a stored candidate keeps suppressing the same posting.
const DefaultSeenTTL = 30 * 24 * time.Hour

type alreadySeenFilter struct {
	deps *AlreadySeenDeps
	ttl  time.Duration
}

type AlreadySeenDeps struct {
	Store  storage.CandidateStore
	Logger *zap.Logger
}

type AlreadySeenConfig struct {
	TTL time.Duration
}

// NewAlreadySeen drops candidates the store has seen within the configured TTL.
func NewAlreadySeen(cfg *AlreadySeenConfig, deps *AlreadySeenDeps) Filter {
	ttl := DefaultSeenTTL
	if cfg != nil && cfg.TTL > 0 {
		ttl = cfg.TTL
	}

	return &alreadySeenFilter{
		deps: deps,
		ttl:  ttl,
	}
}

func (f *alreadySeenFilter) Name() string { return "already_seen" }

func (f *alreadySeenFilter) IsEnabled() bool { return true }

func (f *alreadySeenFilter) Validate() error {
	if f.deps == nil || f.deps.Store == nil {
		return fmt.Errorf("candidate store is required")
	}

	if f.deps.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	return nil
}

// Apply stops at the first store error; the error is always marked as storage.ErrUnavailable.
func (f *alreadySeenFilter) Apply(ctx context.Context, c *jobs.Candidates) (*jobs.Candidates, Step, error) {
	initial := c.Len()

	kept := make([]jobs.Candidate, 0, initial)
	var excluded []string
	for _, candidate := range c.Items {
		seen, err := f.deps.Store.Exists(ctx, candidate.Platform, candidate.ExternalID, f.ttl)
		if err != nil {
			return c, Step{}, storage.Unavailable("check already seen", err)
		}
		if seen {
			excluded = append(excluded, candidate.Key().String())
			continue
		}
		kept = append(kept, candidate)
	}
	c.Items = kept

	if len(excluded) > 0 {
		f.deps.Logger.Debug("excluding candidates seen in previous runs",
			zap.Duration("ttl", f.ttl),
			zap.Strings("excluded_candidates", excluded),
			zap.Int("candidates_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *alreadySeenFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: true,
		Details: map[string]string{"ttl": f.ttl.String()},
	}
}
