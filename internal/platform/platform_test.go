package platform

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/spigell/jobsieve/internal/jobs"
)

type namedAdapter string

func (n namedAdapter) Name() string { return string(n) }

func (n namedAdapter) Search(context.Context, Search) ([]jobs.Record, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry(namedAdapter("hh"), namedAdapter("replay"))

	if _, err := r.Get("hh"); err != nil {
		t.Fatalf("get hh: %v", err)
	}
	if _, err := r.Get("linkedin"); !errors.Is(err, ErrAdapter) {
		t.Fatalf("expected adapter error for unknown platform, got %v", err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"hh", "replay"}) {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestSearchDefaults(t *testing.T) {
	s := Search{RequireKeywords: []string{"go"}, ScoringKeywords: []string{"kubernetes"}}
	if s.PlatformName() != DefaultPlatform {
		t.Fatalf("expected default platform, got %q", s.PlatformName())
	}
	if got := s.ScoreKeywords(); !reflect.DeepEqual(got, []string{"go", "kubernetes"}) {
		t.Fatalf("unexpected score keywords %v", got)
	}
}

func TestAdapterErrorWrapsOnce(t *testing.T) {
	base := errors.New("boom")
	err := AdapterError("hh", AdapterError("hh", base))
	if !errors.Is(err, ErrAdapter) || !errors.Is(err, base) {
		t.Fatalf("unexpected error chain: %v", err)
	}
	if err.Error() != "hh: adapter error: boom" {
		t.Fatalf("error wrapped twice: %q", err.Error())
	}
	if AdapterError("hh", nil) != nil {
		t.Fatalf("nil stays nil")
	}
}
