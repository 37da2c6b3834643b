// Package quota gates searches with per-platform, per-day counters.
package quota

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

// Unlimited is returned by RemainingCandidates for platforms without a candidate limit.
const Unlimited = 999_999

// Limit holds the daily allowance of one platform. Zero means no limit.
type Limit struct {
	MaxSearchesPerDay   int `mapstructure:"max-searches-per-day" json:"maxSearchesPerDay"`
	MaxCandidatesPerDay int `mapstructure:"max-candidates-per-day" json:"maxCandidatesPerDay"`
}

// Status is a point-in-time view of a platform's allowance.
type Status struct {
	Platform            string `json:"platform"`
	Date                string `json:"date"`
	SearchesRun         int    `json:"searchesRun"`
	CandidatesFound     int    `json:"candidatesFound"`
	Limit               Limit  `json:"limit"`
	CanSearch           bool   `json:"canSearch"`
	RemainingCandidates int    `json:"remainingCandidates"`
}

// Ledger reads and advances the counters. The date is derived from the clock on every call,
// so a long-running process rolls over at midnight without any timer.
type Ledger struct {
	store  storage.QuotaStore
	limits map[string]Limit
	now    storage.Clock
	logger *zap.Logger
}

func NewLedger(store storage.QuotaStore, limits map[string]Limit, now storage.Clock, logger *zap.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	folded := make(map[string]Limit, len(limits))
	for name, limit := range limits {
		folded[strings.ToLower(name)] = limit
	}
	return &Ledger{store: store, limits: folded, now: now, logger: logger}
}

// limit looks platform up case-insensitively.
func (l *Ledger) limit(platform string) Limit {
	return l.limits[strings.ToLower(platform)]
}

func (l *Ledger) today() string {
	return l.now().Format(jobs.DateLayout)
}

// CanSearch reports whether another search may run on platform today.
func (l *Ledger) CanSearch(ctx context.Context, platform string) (bool, error) {
	limit := l.limit(platform)
	if limit.MaxSearchesPerDay <= 0 {
		return true, nil
	}

	rec, err := l.store.GetQuota(ctx, platform, l.today())
	if err != nil {
		return false, storage.Unavailable("read quota", err)
	}
	return rec.SearchesRun < limit.MaxSearchesPerDay, nil
}

func (l *Ledger) RecordSearch(ctx context.Context, platform string) error {
	return l.increment(ctx, platform, 1, 0)
}

// RemainingCandidates never goes below zero. Platforms without a limit get Unlimited.
func (l *Ledger) RemainingCandidates(ctx context.Context, platform string) (int, error) {
	limit := l.limit(platform)
	if limit.MaxCandidatesPerDay <= 0 {
		return Unlimited, nil
	}

	rec, err := l.store.GetQuota(ctx, platform, l.today())
	if err != nil {
		return 0, storage.Unavailable("read quota", err)
	}
	return max(0, limit.MaxCandidatesPerDay-rec.CandidatesFound), nil
}

func (l *Ledger) RecordCandidates(ctx context.Context, platform string, count int) error {
	if count <= 0 {
		return nil
	}
	return l.increment(ctx, platform, 0, count)
}

// Status returns today's counters together with the configured limits.
func (l *Ledger) Status(ctx context.Context, platform string) (Status, error) {
	date := l.today()
	rec, err := l.store.GetQuota(ctx, platform, date)
	if err != nil {
		return Status{}, storage.Unavailable("read quota", err)
	}

	limit := l.limit(platform)
	status := Status{
		Platform:            platform,
		Date:                date,
		SearchesRun:         rec.SearchesRun,
		CandidatesFound:     rec.CandidatesFound,
		Limit:               limit,
		CanSearch:           limit.MaxSearchesPerDay <= 0 || rec.SearchesRun < limit.MaxSearchesPerDay,
		RemainingCandidates: Unlimited,
	}
	if limit.MaxCandidatesPerDay > 0 {
		status.RemainingCandidates = max(0, limit.MaxCandidatesPerDay-rec.CandidatesFound)
	}
	return status, nil
}

func (l *Ledger) increment(ctx context.Context, platform string, searches, candidates int) error {
	date := l.today()
	if err := l.store.IncrementQuota(ctx, platform, date, searches, candidates); err != nil {
		return storage.Unavailable("increment quota", err)
	}
	l.logger.Debug("quota incremented",
		zap.String("platform", platform),
		zap.String("date", date),
		zap.Int("searches", searches),
		zap.Int("candidates", candidates),
	)
	return nil
}
