// Package storage defines the persistence ports used by the search pipeline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/jobsieve/internal/jobs"
)

// ErrUnavailable marks failures of the backing store. Any error carrying it is fatal for the
// remainder of a pipeline invocation.
var ErrUnavailable = errors.New("store unavailable")

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// CandidateStore keeps previously seen and currently scored candidates keyed by (platform, externalId).
type CandidateStore interface {
	// Exists reports whether the key was first stored no longer than notOlderThan ago.
	Exists(ctx context.Context, platform, externalID string, notOlderThan time.Duration) (bool, error)
	// Upsert inserts or replaces by natural key. On replace the first-seen time and status are kept.
	Upsert(ctx context.Context, scored jobs.ScoredCandidate) error
	List(ctx context.Context, opts ListOptions) ([]jobs.StoredCandidate, error)
	// SetStatus is used by downstream consumers only.
	SetStatus(ctx context.Context, key jobs.Key, status jobs.Status) error
}

// QuotaStore persists per-platform per-day counters. IncrementQuota must be additive and atomic per key.
type QuotaStore interface {
	GetQuota(ctx context.Context, platform, date string) (jobs.QuotaRecord, error)
	IncrementQuota(ctx context.Context, platform, date string, searches, candidates int) error
}

// RunLog is an append-only log of search runs.
type RunLog interface {
	AppendRun(ctx context.Context, run jobs.SearchRunResult) error
	ListRuns(ctx context.Context, limit int) ([]jobs.SearchRunResult, error)
}

// Store bundles all ports implemented by a single backend.
type Store interface {
	CandidateStore
	QuotaStore
	RunLog
	Close() error
}

// ListOptions narrows List results. Zero values mean no filter.
type ListOptions struct {
	Platform string
	Status   jobs.Status
	MinScore float64
	Limit    int
}

// Match reports whether a stored candidate satisfies the options, for backends filtering in memory.
func (o ListOptions) Match(c jobs.StoredCandidate) bool {
	if o.Platform != "" && c.Candidate.Platform != o.Platform {
		return false
	}
	if o.Status != "" && c.Status != o.Status {
		return false
	}
	return c.FinalScore >= o.MinScore
}

// Clock returns the current time. Backends accept one so tests can move time.
type Clock func() time.Time
