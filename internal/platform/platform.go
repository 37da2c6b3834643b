// Package platform describes searches against job platforms and the adapters that execute them.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spigell/jobsieve/internal/jobs"
)

// DefaultPlatform is used for searches that do not name one.
const DefaultPlatform = "hh"

// ErrAdapter marks a failed acquisition. It aborts only the search that produced it.
var ErrAdapter = errors.New("adapter error")

// AdapterError wraps err so that errors.Is(err, ErrAdapter) holds.
func AdapterError(platform string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAdapter) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", platform, ErrAdapter, err)
}

// Filters narrow a search on the platform side. Adapters ignore what they cannot express.
type Filters struct {
	WorkplaceTypes []string `mapstructure:"workplace-types" json:"workplaceTypes,omitempty"`
	Experience     string   `mapstructure:"experience" json:"experience,omitempty"`
	Areas          []int    `mapstructure:"areas" json:"areas,omitempty"`
	Period         int      `mapstructure:"period" json:"period,omitempty"`
	MaxPages       int      `mapstructure:"max-pages" json:"maxPages,omitempty"`
	EasyApplyOnly  bool     `mapstructure:"easy-apply-only" json:"easyApplyOnly,omitempty"`
}

// Search is one configured keyword search.
type Search struct {
	Keyword          string   `mapstructure:"keyword" json:"keyword"`
	Platform         string   `mapstructure:"platform" json:"platform"`
	Filters          Filters  `mapstructure:"filters" json:"filters"`
	ExcludeKeywords  []string `mapstructure:"exclude-keywords" json:"excludeKeywords,omitempty"`
	RequireKeywords  []string `mapstructure:"require-keywords" json:"requireKeywords,omitempty"`
	ScoringKeywords  []string `mapstructure:"scoring-keywords" json:"scoringKeywords,omitempty"`
	FetchDescription bool     `mapstructure:"fetch-description" json:"fetchDescription,omitempty"`
}

// PlatformName returns the platform of the search, falling back to DefaultPlatform.
func (s Search) PlatformName() string {
	if p := strings.TrimSpace(s.Platform); p != "" {
		return p
	}
	return DefaultPlatform
}

// ScoreKeywords are the terms that earn the title bonus: required terms plus boost-only terms.
func (s Search) ScoreKeywords() []string {
	out := make([]string, 0, len(s.RequireKeywords)+len(s.ScoringKeywords))
	out = append(out, s.RequireKeywords...)
	return append(out, s.ScoringKeywords...)
}

// Adapter fetches raw records for a search. Records are normalized by the caller.
type Adapter interface {
	Name() string
	Search(ctx context.Context, search Search) ([]jobs.Record, error)
}

// Registry resolves adapters by platform name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter under its name.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, AdapterError(name, fmt.Errorf("no adapter registered (known: %s)", strings.Join(r.Names(), ", ")))
	}
	return a, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
