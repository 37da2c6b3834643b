package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jobsieve/internal/filtering"
	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/platform"
	"github.com/spigell/jobsieve/internal/quota"
	"github.com/spigell/jobsieve/internal/scoring"
	"github.com/spigell/jobsieve/internal/storage"
	"github.com/spigell/jobsieve/internal/storage/memory"
)

var fixedNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func record(id, title string) jobs.Record {
	return jobs.Record{"externalId": id, "title": title, "url": "https://hh.ru/vacancy/" + id}
}

type stubAdapter struct {
	name      string
	byKeyword map[string][]jobs.Record
	err       error
	calls     []string
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Search(_ context.Context, s platform.Search) ([]jobs.Record, error) {
	a.calls = append(a.calls, s.Keyword)
	if a.err != nil {
		return nil, a.err
	}
	return a.byKeyword[s.Keyword], nil
}

// failingUpserts rejects upserts of the listed ids.
type failingUpserts struct {
	*memory.Store
	ids map[string]bool
}

func (s *failingUpserts) Upsert(ctx context.Context, c jobs.ScoredCandidate) error {
	if s.ids[c.Candidate.ExternalID] {
		return errors.New("connection refused")
	}
	return s.Store.Upsert(ctx, c)
}

type setup struct {
	searches []platform.Search
	limits   map[string]quota.Limit
	store    Store
	adapters []platform.Adapter
	refiner  Refiner
	logger   *zap.Logger
}

func newOrchestrator(t *testing.T, mem *memory.Store, s setup) *Orchestrator {
	t.Helper()
	if s.store == nil {
		s.store = mem
	}
	seq := 0
	o, err := New(&Config{Searches: s.searches}, &Deps{
		Adapters: platform.NewRegistry(s.adapters...),
		Store:    s.store,
		Quota:    quota.NewLedger(mem, s.limits, clock, nil),
		Scorer:   scoring.NewRules(scoring.DefaultWeights(), scoring.SeniorityUnknown, clock),
		Refiner:  s.refiner,
		Logger:   s.logger,
		Now:      clock,
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestRunIsIdempotent(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{
		"go": {record("1", "Go Developer"), record("2", "Senior Go Engineer"), record("3", "Backend Engineer")},
	}}
	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go", RequireKeywords: []string{"go", "backend"}}},
		adapters: []platform.Adapter{hh},
	})
	ctx := context.Background()

	first, err := o.RunAllSearches(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Raw != 3 || first.Filtered != 3 || first.Final != 3 {
		t.Fatalf("unexpected first summary %+v", first)
	}

	second, err := o.RunAllSearches(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Raw != 3 || second.Filtered != 0 || second.Final != 0 {
		t.Fatalf("second run should filter everything as already seen: %+v", second)
	}

	stored, err := mem.List(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored candidates, got %d", len(stored))
	}
	for _, c := range stored {
		if c.Status != jobs.StatusNew {
			t.Fatalf("pipeline must only write status new, got %q", c.Status)
		}
	}
	if stored[0].Candidate.ExternalID != "2" {
		t.Fatalf("senior title should rank first, got %s", stored[0].Candidate.ExternalID)
	}

	rec, _ := mem.GetQuota(ctx, "hh", "2026-05-10")
	if rec.SearchesRun != 2 || rec.CandidatesFound != 3 {
		t.Fatalf("unexpected quota record %+v", rec)
	}
	runs, _ := mem.ListRuns(ctx, 0)
	if len(runs) != 2 || runs[0].InvocationID == runs[1].InvocationID {
		t.Fatalf("expected two runs from distinct invocations: %+v", runs)
	}
}

func TestQuotaBlockedSearchMakesNoAdapterCall(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{"go": {record("1", "Go Developer")}}}
	replay := &stubAdapter{name: "replay", byKeyword: map[string][]jobs.Record{"rust": {record("r", "Rust Developer")}}}
	core, observed := observer.New(zapcore.InfoLevel)

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{
			{Keyword: "go"},
			{Keyword: "golang"},
			{Keyword: "rust", Platform: "replay"},
		},
		limits:   map[string]quota.Limit{"hh": {MaxSearchesPerDay: 1}},
		adapters: []platform.Adapter{hh, replay},
		logger:   zap.New(core),
	})

	summary, err := o.RunAllSearches(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(hh.calls) != 1 || hh.calls[0] != "go" {
		t.Fatalf("blocked search must not reach the adapter, calls: %v", hh.calls)
	}
	blocked := summary.Results[1]
	if blocked.Status != jobs.RunQuotaBlocked || blocked.RawCount != 0 || blocked.FilteredCount != 0 {
		t.Fatalf("unexpected blocked result %+v", blocked)
	}
	if summary.Results[2].Status != jobs.RunOK || summary.Results[2].FinalCount != 1 {
		t.Fatalf("other platform must not be affected: %+v", summary.Results[2])
	}
	if summary.Blocked != 1 {
		t.Fatalf("expected one blocked search, got %d", summary.Blocked)
	}

	rec, _ := mem.GetQuota(context.Background(), "hh", "2026-05-10")
	if rec.SearchesRun != 1 {
		t.Fatalf("blocked search must not count, got %+v", rec)
	}
	if observed.FilterMessage("search blocked by quota").Len() != 1 {
		t.Fatalf("expected an info log for the blocked search")
	}
}

func TestFilterChainIsLoggedAtDebug(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{"go": {record("1", "Go Developer")}}}
	core, observed := observer.New(zapcore.DebugLevel)

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go", ExcludeKeywords: []string{"php"}}},
		adapters: []platform.Adapter{hh},
		logger:   zap.New(core),
	})
	if _, err := o.RunAllSearches(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries := observed.FilterMessage("filter chain").All()
	if len(entries) != 1 {
		t.Fatalf("expected one filter chain entry, got %d", len(entries))
	}
	statuses, ok := entries[0].ContextMap()["filters"].([]filtering.Status)
	if !ok || len(statuses) != 4 {
		t.Fatalf("unexpected filters field %#v", entries[0].ContextMap()["filters"])
	}
	if statuses[0].Details["terms"] != "php" || statuses[1].Enabled {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
}

func TestAdapterErrorOnlyAffectsItsSearch(t *testing.T) {
	mem := memory.New(clock)
	broken := &stubAdapter{name: "broken", err: errors.New("timeout")}
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{"go": {record("1", "Go Developer")}}}

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{
			{Keyword: "go", Platform: "broken"},
			{Keyword: "go", Platform: "missing"},
			{Keyword: "go"},
		},
		adapters: []platform.Adapter{broken, hh},
	})

	summary, err := o.RunAllSearches(context.Background())
	if err != nil {
		t.Fatalf("adapter failures must not fail the run: %v", err)
	}
	for _, r := range summary.Results[:2] {
		if r.Status != jobs.RunAdapterError || r.RawCount != 0 || r.Error == "" {
			t.Fatalf("unexpected failed result %+v", r)
		}
	}
	if summary.Results[2].Status != jobs.RunOK || summary.Final != 1 || summary.Failed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	brokenQuota, _ := mem.GetQuota(context.Background(), "broken", "2026-05-10")
	if brokenQuota.SearchesRun != 0 {
		t.Fatalf("failed search must not be counted: %+v", brokenQuota)
	}
	runs, _ := mem.ListRuns(context.Background(), 0)
	if len(runs) != 3 {
		t.Fatalf("every attempted search is logged, got %d", len(runs))
	}
}

func TestStoreUnavailableStopsTheInvocation(t *testing.T) {
	mem := memory.New(clock)
	store := &failingUpserts{Store: mem, ids: map[string]bool{"r1": true}}
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{
		"go":     {record("g1", "Go Developer")},
		"rust":   {record("r1", "Rust Developer")},
		"python": {record("p1", "Python Developer")},
	}}

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go"}, {Keyword: "rust"}, {Keyword: "python"}},
		store:    store,
		adapters: []platform.Adapter{hh},
	})

	summary, err := o.RunAllSearches(context.Background())
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}

	want := []jobs.RunStatus{jobs.RunOK, jobs.RunStoreUnavailable, jobs.RunSkipped}
	for i, status := range want {
		if summary.Results[i].Status != status {
			t.Fatalf("result %d status = %q, want %q", i, summary.Results[i].Status, status)
		}
	}
	if len(hh.calls) != 2 {
		t.Fatalf("skipped search must not reach the adapter, calls: %v", hh.calls)
	}

	rec, _ := mem.GetQuota(context.Background(), "hh", "2026-05-10")
	if rec.SearchesRun != 1 || rec.CandidatesFound != 1 {
		t.Fatalf("earlier search must stay committed and the failed one uncounted: %+v", rec)
	}
	if summary.Final != 1 || summary.Skipped != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestDedupIsSharedAcrossSearches(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{
		"go":     {record("1", "Go Developer"), record("2", "Go Engineer")},
		"golang": {record("2", "Go Engineer"), record("3", "Golang Developer")},
	}}

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go"}, {Keyword: "golang"}},
		adapters: []platform.Adapter{hh},
	})

	summary, err := o.RunAllSearches(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Results[1].RawCount != 2 || summary.Results[1].FilteredCount != 1 {
		t.Fatalf("duplicate from the first search should be dropped: %+v", summary.Results[1])
	}
}

func TestCandidateCapKeepsBestScores(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{
		"go": {record("low", "Designer"), record("high", "Senior Go Developer"), record("mid", "Go Developer")},
	}}

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go", ScoringKeywords: []string{"go"}}},
		limits:   map[string]quota.Limit{"hh": {MaxCandidatesPerDay: 2}},
		adapters: []platform.Adapter{hh},
	})

	summary, err := o.RunAllSearches(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := summary.Results[0]
	if r.FilteredCount != 3 || r.FinalCount != 2 {
		t.Fatalf("unexpected counts %+v", r)
	}

	stored, _ := mem.List(context.Background(), storage.ListOptions{})
	if len(stored) != 2 || stored[0].Candidate.ExternalID != "high" || stored[1].Candidate.ExternalID != "mid" {
		t.Fatalf("unexpected stored candidates %+v", stored)
	}
	rec, _ := mem.GetQuota(context.Background(), "hh", "2026-05-10")
	if rec.CandidatesFound != 2 {
		t.Fatalf("quota should count persisted candidates, got %+v", rec)
	}
}

func TestParseFailuresAreDroppedWithWarning(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{
		"go": {record("1", "Go Developer"), {"externalId": "2", "title": "No URL"}, record("", "No id")},
	}}
	core, observed := observer.New(zapcore.WarnLevel)

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go"}},
		adapters: []platform.Adapter{hh},
		logger:   zap.New(core),
	})

	summary, err := o.RunAllSearches(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Raw != 3 || summary.Filtered != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if observed.FilterMessage("dropping unparseable record").Len() != 2 {
		t.Fatalf("expected one warning per unparseable record")
	}
}

type reversingRefiner struct{ calls int }

func (r *reversingRefiner) Refine(_ context.Context, batch []jobs.ScoredCandidate) []jobs.ScoredCandidate {
	r.calls++
	out := make([]jobs.ScoredCandidate, 0, len(batch))
	for i := len(batch) - 1; i >= 0; i-- {
		out = append(out, batch[i].WithAssisted(50, "stub", 50))
	}
	return out
}

func TestRefinerRunsOnNonEmptyBatches(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh", byKeyword: map[string][]jobs.Record{"go": {record("1", "Go Developer")}}}
	refiner := &reversingRefiner{}

	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go"}, {Keyword: "nothing"}},
		adapters: []platform.Adapter{hh},
		refiner:  refiner,
	})

	if _, err := o.RunAllSearches(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if refiner.calls != 1 {
		t.Fatalf("expected refiner to run once, got %d", refiner.calls)
	}
	stored, _ := mem.List(context.Background(), storage.ListOptions{})
	if stored[0].AssistedScore == nil || stored[0].Reasoning != "stub" {
		t.Fatalf("refined score should be persisted: %+v", stored[0])
	}
}

func TestDryRunHasNoSideEffects(t *testing.T) {
	mem := memory.New(clock)
	hh := &stubAdapter{name: "hh"}
	o := newOrchestrator(t, mem, setup{
		searches: []platform.Search{{Keyword: "go"}},
		limits:   map[string]quota.Limit{"hh": {MaxSearchesPerDay: 3, MaxCandidatesPerDay: 10}},
		adapters: []platform.Adapter{hh},
	})

	previews, err := o.DryRun(context.Background())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(previews) != 1 || !previews[0].Quota.CanSearch || previews[0].Quota.RemainingCandidates != 10 {
		t.Fatalf("unexpected previews %+v", previews)
	}
	if len(hh.calls) != 0 {
		t.Fatalf("dry run must not call adapters")
	}
	runs, _ := mem.ListRuns(context.Background(), 0)
	if len(runs) != 0 {
		t.Fatalf("dry run must not log runs")
	}
}

func TestSummaryWrite(t *testing.T) {
	s := &Summary{}
	s.add(jobs.SearchRunResult{Platform: "hh", Keyword: "go", Status: jobs.RunOK, RawCount: 5, FilteredCount: 3, FinalCount: 2})
	s.add(jobs.SearchRunResult{Platform: "hh", Keyword: "rust", Status: jobs.RunAdapterError, Error: "timeout"})

	var buf bytes.Buffer
	if err := s.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"PLATFORM", "go", "timeout", "TOTAL", "searches: 2, blocked: 0, failed: 1, skipped: 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
