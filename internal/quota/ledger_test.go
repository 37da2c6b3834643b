package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spigell/jobsieve/internal/storage"
	"github.com/spigell/jobsieve/internal/storage/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLedger(limits map[string]Limit) (*Ledger, *fakeClock, *memory.Store) {
	clock := &fakeClock{t: time.Date(2026, 5, 10, 23, 30, 0, 0, time.UTC)}
	store := memory.New(clock.now)
	return NewLedger(store, limits, clock.now, nil), clock, store
}

func TestCanSearchStopsAfterLimit(t *testing.T) {
	ledger, _, _ := newTestLedger(map[string]Limit{"hh": {MaxSearchesPerDay: 3}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := ledger.CanSearch(ctx, "hh")
		if err != nil {
			t.Fatalf("can search: %v", err)
		}
		if !ok {
			t.Fatalf("search %d should be allowed", i+1)
		}
		if err := ledger.RecordSearch(ctx, "hh"); err != nil {
			t.Fatalf("record search: %v", err)
		}
	}

	ok, err := ledger.CanSearch(ctx, "hh")
	if err != nil {
		t.Fatalf("can search: %v", err)
	}
	if ok {
		t.Fatalf("fourth search must be blocked")
	}
}

func TestDayRollover(t *testing.T) {
	ledger, clock, _ := newTestLedger(map[string]Limit{"hh": {MaxSearchesPerDay: 1, MaxCandidatesPerDay: 10}})
	ctx := context.Background()

	_ = ledger.RecordSearch(ctx, "hh")
	_ = ledger.RecordCandidates(ctx, "hh", 10)

	if ok, _ := ledger.CanSearch(ctx, "hh"); ok {
		t.Fatalf("expected block before midnight")
	}
	if left, _ := ledger.RemainingCandidates(ctx, "hh"); left != 0 {
		t.Fatalf("expected no candidates left, got %d", left)
	}

	clock.t = clock.t.Add(time.Hour)

	if ok, _ := ledger.CanSearch(ctx, "hh"); !ok {
		t.Fatalf("expected new day to allow searching")
	}
	status, err := ledger.Status(ctx, "hh")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Date != "2026-05-11" || status.SearchesRun != 0 || status.RemainingCandidates != 10 {
		t.Fatalf("unexpected status after rollover: %+v", status)
	}
}

func TestPlatformIsolation(t *testing.T) {
	ledger, _, _ := newTestLedger(map[string]Limit{
		"hh":       {MaxSearchesPerDay: 1},
		"linkedin": {MaxSearchesPerDay: 1},
	})
	ctx := context.Background()

	_ = ledger.RecordSearch(ctx, "hh")

	if ok, _ := ledger.CanSearch(ctx, "hh"); ok {
		t.Fatalf("hh should be exhausted")
	}
	if ok, _ := ledger.CanSearch(ctx, "linkedin"); !ok {
		t.Fatalf("linkedin must not be affected by hh")
	}
}

func TestLimitLookupIgnoresCase(t *testing.T) {
	ledger, _, _ := newTestLedger(map[string]Limit{"linkedin": {MaxSearchesPerDay: 1, MaxCandidatesPerDay: 4}})
	ctx := context.Background()

	if err := ledger.RecordSearch(ctx, "LinkedIn"); err != nil {
		t.Fatalf("record search: %v", err)
	}
	if ok, _ := ledger.CanSearch(ctx, "LinkedIn"); ok {
		t.Fatal("mixed-case platform must hit the lowercase limit")
	}
	if left, _ := ledger.RemainingCandidates(ctx, "LinkedIn"); left != 4 {
		t.Fatalf("expected 4 candidates left, got %d", left)
	}
}

func TestUnconfiguredPlatformIsUnlimited(t *testing.T) {
	ledger, _, _ := newTestLedger(nil)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_ = ledger.RecordSearch(ctx, "replay")
	}
	if ok, _ := ledger.CanSearch(ctx, "replay"); !ok {
		t.Fatalf("unconfigured platform must never block")
	}
	if left, _ := ledger.RemainingCandidates(ctx, "replay"); left != Unlimited {
		t.Fatalf("expected unlimited sentinel, got %d", left)
	}
}

func TestRemainingCandidatesNeverNegative(t *testing.T) {
	ledger, _, _ := newTestLedger(map[string]Limit{"hh": {MaxCandidatesPerDay: 5}})
	ctx := context.Background()

	_ = ledger.RecordCandidates(ctx, "hh", 3)
	if left, _ := ledger.RemainingCandidates(ctx, "hh"); left != 2 {
		t.Fatalf("expected 2 left, got %d", left)
	}
	_ = ledger.RecordCandidates(ctx, "hh", 9)
	if left, _ := ledger.RemainingCandidates(ctx, "hh"); left != 0 {
		t.Fatalf("expected 0 left, got %d", left)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	ledger, _, store := newTestLedger(map[string]Limit{"hh": {MaxSearchesPerDay: 1}})
	store.Fail = errors.New("connection reset")

	if _, err := ledger.CanSearch(context.Background(), "hh"); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := ledger.RecordSearch(context.Background(), "hh"); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
