// Package pipeline runs the configured searches: quota gate, acquisition, filter chain, scoring and persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/filtering"
	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/logger"
	"github.com/spigell/jobsieve/internal/platform"
	"github.com/spigell/jobsieve/internal/quota"
	"github.com/spigell/jobsieve/internal/storage"
)

// Store is the part of a storage backend the orchestrator writes to.
type Store interface {
	storage.CandidateStore
	storage.RunLog
}

// Quota gates and accounts searches. *quota.Ledger implements it.
type Quota interface {
	CanSearch(ctx context.Context, platform string) (bool, error)
	RecordSearch(ctx context.Context, platform string) error
	RemainingCandidates(ctx context.Context, platform string) (int, error)
	RecordCandidates(ctx context.Context, platform string, count int) error
	Status(ctx context.Context, platform string) (quota.Status, error)
}

// Scorer produces the rule-based ranking of a batch.
type Scorer interface {
	ScoreAll(candidates []jobs.Candidate, keywords []string) []jobs.ScoredCandidate
}

// Refiner is the optional assisted scoring pass.
type Refiner interface {
	Refine(ctx context.Context, batch []jobs.ScoredCandidate) []jobs.ScoredCandidate
}

type Config struct {
	Searches []platform.Search
	SeenTTL  time.Duration
}

type Deps struct {
	Adapters *platform.Registry
	Store    Store
	Quota    Quota
	Scorer   Scorer
	// Refiner is nil when assisted scoring is disabled.
	Refiner Refiner
	Logger  *zap.Logger
	Now     storage.Clock
	NewID   func() string
}

type Orchestrator struct {
	searches []platform.Search
	seenTTL  time.Duration

	adapters *platform.Registry
	store    Store
	quota    Quota
	scorer   Scorer
	refiner  Refiner
	logger   *zap.Logger
	now      storage.Clock
	newID    func() string
}

func New(cfg *Config, deps *Deps) (*Orchestrator, error) {
	if cfg == nil || deps == nil {
		return nil, errors.New("pipeline config and dependencies are required")
	}
	switch {
	case deps.Adapters == nil:
		return nil, errors.New("pipeline requires platform adapters")
	case deps.Store == nil:
		return nil, errors.New("pipeline requires a candidate store")
	case deps.Quota == nil:
		return nil, errors.New("pipeline requires a quota ledger")
	case deps.Scorer == nil:
		return nil, errors.New("pipeline requires a scorer")
	}

	o := &Orchestrator{
		searches: cfg.Searches,
		seenTTL:  cfg.SeenTTL,
		adapters: deps.Adapters,
		store:    deps.Store,
		quota:    deps.Quota,
		scorer:   deps.Scorer,
		refiner:  deps.Refiner,
		logger:   deps.Logger,
		now:      deps.Now,
		newID:    deps.NewID,
	}
	if o.seenTTL <= 0 {
		o.seenTTL = filtering.DefaultSeenTTL
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o, nil
}

// RunAllSearches executes every configured search in order. Searches share one dedup set.
// A search failing on its adapter is recorded and the next one proceeds; an unavailable store stops
// the invocation, marks the remaining searches skipped and is returned together with the summary.
func (o *Orchestrator) RunAllSearches(ctx context.Context) (*Summary, error) {
	summary := &Summary{InvocationID: o.newID()}
	seen := filtering.NewSeenSet()
	log := o.logger.With(zap.String("invocation_id", summary.InvocationID))

	log.Info("run started", zap.Int("searches", len(o.searches)))

	var fatal error
	for _, search := range o.searches {
		if fatal == nil {
			if err := ctx.Err(); err != nil {
				fatal = err
			}
		}
		if fatal != nil {
			summary.add(o.skipped(summary.InvocationID, search, fatal))
			continue
		}

		result, err := o.runSearch(ctx, summary.InvocationID, search, seen, log)
		summary.add(result)
		if err != nil {
			fatal = err
			log.Error("store unavailable, skipping remaining searches",
				append(logger.SearchFields(result.Platform, result.Keyword), zap.Error(err))...,
			)
		}
	}

	log.Info("run finished",
		zap.Int("raw", summary.Raw),
		zap.Int("filtered", summary.Filtered),
		zap.Int("final", summary.Final),
		zap.Int("blocked", summary.Blocked),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)

	return summary, fatal
}

// runSearch returns a non-nil error only for failures that must stop the invocation.
func (o *Orchestrator) runSearch(ctx context.Context, invocationID string, search platform.Search, seen *filtering.SeenSet, base *zap.Logger) (jobs.SearchRunResult, error) {
	result := o.newResult(invocationID, search)
	log := logger.WithFields(base, logger.SearchFields(result.Platform, result.Keyword)...)

	fail := func(err error) (jobs.SearchRunResult, error) {
		err = storage.Unavailable("search "+result.Keyword, err)
		result.Status = jobs.RunStoreUnavailable
		result.Error = err.Error()
		result.FinishedAt = o.now()
		return result, err
	}

	allowed, err := o.quota.CanSearch(ctx, result.Platform)
	if err != nil {
		return fail(err)
	}
	if !allowed {
		log.Info("search blocked by quota")
		result.Status = jobs.RunQuotaBlocked
		return o.finish(ctx, result)
	}

	records, err := o.acquire(ctx, result.Platform, search)
	if err != nil {
		log.Warn("adapter failed, skipping search", zap.Error(err))
		result.Status = jobs.RunAdapterError
		result.Error = err.Error()
		return o.finish(ctx, result)
	}
	result.RawCount = len(records)

	candidates, failures := jobs.DecodeAll(result.Platform, records, o.now())
	for _, failure := range failures {
		log.Warn("dropping unparseable record", zap.Error(failure))
	}

	chain := filtering.NewChain(filtering.ChainConfig{
		ExcludeKeywords: search.ExcludeKeywords,
		RequireKeywords: search.RequireKeywords,
		SeenTTL:         o.seenTTL,
	}, seen, o.store, log)
	log.Debug("filter chain", zap.Any("filters", chain.Describe()))

	survivors, _, err := chain.Run(ctx, jobs.NewCandidates(candidates...))
	if err != nil {
		return fail(err)
	}
	result.FilteredCount = survivors.Len()

	scored := o.scorer.ScoreAll(survivors.Items, search.ScoreKeywords())
	if o.refiner != nil && len(scored) > 0 {
		scored = o.refiner.Refine(ctx, scored)
	}

	remaining, err := o.quota.RemainingCandidates(ctx, result.Platform)
	if err != nil {
		return fail(err)
	}
	if len(scored) > remaining {
		log.Info("daily candidate limit reached, keeping the best ones",
			zap.Int("scored", len(scored)),
			zap.Int("remaining", remaining),
		)
		scored = scored[:remaining]
	}

	for _, s := range scored {
		if err := o.store.Upsert(ctx, s); err != nil {
			return fail(err)
		}
		result.FinalCount++
	}

	if err := o.quota.RecordSearch(ctx, result.Platform); err != nil {
		return fail(err)
	}
	if err := o.quota.RecordCandidates(ctx, result.Platform, result.FinalCount); err != nil {
		return fail(err)
	}

	result.Status = jobs.RunOK
	log.Info("search finished",
		zap.Int("raw", result.RawCount),
		zap.Int("filtered", result.FilteredCount),
		zap.Int("final", result.FinalCount),
		zap.Int("parse_failures", len(failures)),
	)
	return o.finish(ctx, result)
}

func (o *Orchestrator) acquire(ctx context.Context, platformName string, search platform.Search) ([]jobs.Record, error) {
	adapter, err := o.adapters.Get(platformName)
	if err != nil {
		return nil, err
	}
	records, err := adapter.Search(ctx, search)
	if err != nil {
		return nil, platform.AdapterError(platformName, err)
	}
	return records, nil
}

// finish stamps and appends the result to the run log.
func (o *Orchestrator) finish(ctx context.Context, result jobs.SearchRunResult) (jobs.SearchRunResult, error) {
	result.FinishedAt = o.now()
	if err := o.store.AppendRun(ctx, result); err != nil {
		err = storage.Unavailable("append run", err)
		result.Status = jobs.RunStoreUnavailable
		result.Error = err.Error()
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) newResult(invocationID string, search platform.Search) jobs.SearchRunResult {
	filters, err := json.Marshal(search.Filters)
	if err != nil {
		filters = []byte("{}")
	}
	return jobs.SearchRunResult{
		ID:           o.newID(),
		InvocationID: invocationID,
		Platform:     search.PlatformName(),
		Keyword:      search.Keyword,
		FiltersJSON:  string(filters),
		StartedAt:    o.now(),
	}
}

func (o *Orchestrator) skipped(invocationID string, search platform.Search, cause error) jobs.SearchRunResult {
	result := o.newResult(invocationID, search)
	result.Status = jobs.RunSkipped
	result.Error = fmt.Sprintf("not attempted: %v", cause)
	result.FinishedAt = result.StartedAt
	return result
}

// Preview is the dry-run view of one search.
type Preview struct {
	Search platform.Search
	Quota  quota.Status
}

// DryRun reports, per search, whether it would run and how many candidates could still be stored.
// It calls no adapter and writes nothing.
func (o *Orchestrator) DryRun(ctx context.Context) ([]Preview, error) {
	previews := make([]Preview, 0, len(o.searches))
	for _, search := range o.searches {
		status, err := o.quota.Status(ctx, search.PlatformName())
		if err != nil {
			return previews, err
		}
		previews = append(previews, Preview{Search: search, Quota: status})
	}
	return previews, nil
}
