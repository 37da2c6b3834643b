package filtering

import (
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/storage"
)

// ChainConfig is the per-search configuration of the standard chain.
type ChainConfig struct {
	ExcludeKeywords []string
	RequireKeywords []string
	SeenTTL         time.Duration
}

// NewChain builds the standard chain. The order is fixed: title exclusion first, then required
// keywords, in-run dedup against seen, and finally the store-backed already-seen check.
func NewChain(cfg ChainConfig, seen *SeenSet, store storage.CandidateStore, logger *zap.Logger) *Filtering {
	logger = orNop(logger)
	return New([]Filter{
		NewExcludeKeywords(cfg.ExcludeKeywords, logger),
		NewRequireKeywords(cfg.RequireKeywords, logger),
		NewDedup(seen, logger),
		NewAlreadySeen(&AlreadySeenConfig{TTL: cfg.SeenTTL}, &AlreadySeenDeps{Store: store, Logger: logger}),
	}, logger)
}
