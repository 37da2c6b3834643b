// Package memory is an in-process storage backend for dry runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

type quotaKey struct {
	platform string
	date     string
}

// Store keeps everything in maps guarded by a single mutex.
type Store struct {
	mu         sync.Mutex
	now        storage.Clock
	candidates map[jobs.Key]jobs.StoredCandidate
	order      []jobs.Key
	quota      map[quotaKey]jobs.QuotaRecord
	runs       []jobs.SearchRunResult

	// Fail, when set, is returned by every operation. It simulates an unreachable backend.
	Fail error
}

func New(now storage.Clock) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:        now,
		candidates: make(map[jobs.Key]jobs.StoredCandidate),
		quota:      make(map[quotaKey]jobs.QuotaRecord),
	}
}

func (s *Store) Exists(_ context.Context, platform, externalID string, notOlderThan time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return false, s.Fail
	}

	stored, ok := s.candidates[jobs.Key{Platform: platform, ExternalID: externalID}]
	if !ok {
		return false, nil
	}
	cutoff := s.now().Add(-notOlderThan)
	return !stored.FirstSeenAt.Before(cutoff), nil
}

func (s *Store) Upsert(_ context.Context, scored jobs.ScoredCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}

	key := scored.Candidate.Key()
	now := s.now()

	if existing, ok := s.candidates[key]; ok {
		s.candidates[key] = jobs.StoredCandidate{
			ScoredCandidate: scored,
			Status:          existing.Status,
			FirstSeenAt:     existing.FirstSeenAt,
			LastSeenAt:      now,
		}
		return nil
	}

	firstSeen := scored.Candidate.DiscoveredAt
	if firstSeen.IsZero() {
		firstSeen = now
	}
	s.candidates[key] = jobs.StoredCandidate{
		ScoredCandidate: scored,
		Status:          jobs.StatusNew,
		FirstSeenAt:     firstSeen,
		LastSeenAt:      now,
	}
	s.order = append(s.order, key)
	return nil
}

func (s *Store) List(_ context.Context, opts storage.ListOptions) ([]jobs.StoredCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}

	result := make([]jobs.StoredCandidate, 0, len(s.order))
	for _, key := range s.order {
		c := s.candidates[key]
		if opts.Match(c) {
			result = append(result, c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].FinalScore > result[j].FinalScore
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) SetStatus(_ context.Context, key jobs.Key, status jobs.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}

	c, ok := s.candidates[key]
	if !ok {
		return storage.ErrNotFound
	}
	c.Status = status
	s.candidates[key] = c
	return nil
}

func (s *Store) GetQuota(_ context.Context, platform, date string) (jobs.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return jobs.QuotaRecord{}, s.Fail
	}

	rec, ok := s.quota[quotaKey{platform, date}]
	if !ok {
		return jobs.QuotaRecord{Platform: platform, Date: date}, nil
	}
	return rec, nil
}

func (s *Store) IncrementQuota(_ context.Context, platform, date string, searches, candidates int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}

	key := quotaKey{platform, date}
	rec, ok := s.quota[key]
	if !ok {
		rec = jobs.QuotaRecord{Platform: platform, Date: date}
	}
	rec.SearchesRun += searches
	rec.CandidatesFound += candidates
	s.quota[key] = rec
	return nil
}

func (s *Store) AppendRun(_ context.Context, run jobs.SearchRunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) ListRuns(_ context.Context, limit int) ([]jobs.SearchRunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return nil, s.Fail
	}

	runs := make([]jobs.SearchRunResult, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		runs = append(runs, s.runs[i])
		if limit > 0 && len(runs) == limit {
			break
		}
	}
	return runs, nil
}

func (s *Store) Close() error { return nil }
