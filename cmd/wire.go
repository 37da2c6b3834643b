package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/ai"
	"github.com/spigell/jobsieve/internal/ai/gemini"
	"github.com/spigell/jobsieve/internal/ai/openai"
	"github.com/spigell/jobsieve/internal/config"
	"github.com/spigell/jobsieve/internal/headhunter"
	"github.com/spigell/jobsieve/internal/logger"
	"github.com/spigell/jobsieve/internal/pipeline"
	"github.com/spigell/jobsieve/internal/platform"
	"github.com/spigell/jobsieve/internal/platform/replay"
	"github.com/spigell/jobsieve/internal/quota"
	"github.com/spigell/jobsieve/internal/scoring"
	"github.com/spigell/jobsieve/internal/secrets"
	"github.com/spigell/jobsieve/internal/storage"
	"github.com/spigell/jobsieve/internal/storage/memory"
	"github.com/spigell/jobsieve/internal/storage/postgres"
	"github.com/spigell/jobsieve/internal/storage/redis"
	"github.com/spigell/jobsieve/internal/storage/sqlite"
)

// backend is everything a command needs from storage. Close releases all of it.
type backend struct {
	store  storage.Store
	ledger *quota.Ledger
	closer []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closer) - 1; i >= 0; i-- {
		errs = append(errs, b.closer[i]())
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	b := &backend{store: store, closer: []func() error{store.Close}}

	var quotaStore storage.QuotaStore = store
	if cfg.Storage.Quota.Backend == config.QuotaBackendRedis {
		rq, err := redis.Dial(ctx, cfg.Storage.Quota.RedisURL, cfg.Storage.Quota.Prefix)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closer = append(b.closer, rq.Close)
		quotaStore = rq
	}

	b.ledger = quota.NewLedger(quotaStore, cfg.Quotas, nil, log)
	return b, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.StorageSQLite:
		return sqlite.Open(cfg.SQLitePath, nil)
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresURL, nil)
	case config.StorageMemory:
		return memory.New(nil), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newRegistry(cfg *config.Config, log *zap.Logger) (*platform.Registry, error) {
	token, err := secrets.LoadOptional(secrets.Source{
		Name:  "hh token",
		File:  cfg.Platforms.HH.TokenFile,
		Env:   "HH_TOKEN",
		Value: cfg.Platforms.HH.Token,
	})
	if err != nil {
		return nil, err
	}

	hh := headhunter.New(logger.WithFields(log, zap.String(logger.FieldPlatform, headhunter.Name)), token)
	if cfg.Platforms.HH.UserAgent != "" {
		hh.UserAgent = cfg.Platforms.HH.UserAgent
	}
	if cfg.Platforms.HH.PageDelay > 0 {
		hh.PageDelay = cfg.Platforms.HH.PageDelay
	}

	registry := platform.NewRegistry(hh)
	for _, r := range cfg.Platforms.Replay {
		registry.Register(replay.New(r.Name, r.Path))
	}
	return registry, nil
}

func newCompleter(ctx context.Context, cfg config.AssistantConfig, log *zap.Logger) (ai.Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			File:  cfg.Gemini.APIKeyFile,
			Env:   "GEMINI_API_KEY",
			Value: cfg.Gemini.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set assistant.gemini.api-key-file or GEMINI_API_KEY)", err)
		}
		genLogger := logger.WithCommonFields(log, config.ProviderGemini, cfg.Gemini.Model)
		return gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	case config.ProviderOpenAI:
		// local OpenAI-compatible servers run without a key
		apiKey, err := secrets.LoadOptional(secrets.Source{
			Name:  "openai api key",
			File:  cfg.OpenAI.APIKeyFile,
			Env:   "OPENAI_API_KEY",
			Value: cfg.OpenAI.APIKey,
		})
		if err != nil {
			return nil, err
		}
		return openai.New(openai.Config{
			APIKey:      apiKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported assistant provider: %s", cfg.Provider)
	}
}

// newRefiner returns nil when assisted scoring is disabled.
func newRefiner(ctx context.Context, cfg *config.Config, log *zap.Logger) (pipeline.Refiner, error) {
	if !cfg.Scoring.Assisted.Enabled {
		return nil, nil
	}

	completer, err := newCompleter(ctx, cfg.Assistant, log)
	if err != nil {
		return nil, err
	}

	aiLogger := logger.WithCommonFields(log, cfg.Assistant.Provider, completer.Model())
	evaluator := ai.NewEvaluator(completer, aiLogger, cfg.Assistant.MaxLogLength)

	return scoring.NewRefiner(evaluator, cfg.Profile, cfg.Scoring.Assisted.Blend, cfg.Scoring.Assisted.Concurrency, aiLogger), nil
}

func newOrchestrator(ctx context.Context, cfg *config.Config, b *backend, log *zap.Logger) (*pipeline.Orchestrator, error) {
	registry, err := newRegistry(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("platform adapters: %w", err)
	}

	refiner, err := newRefiner(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("assisted scoring: %w", err)
	}

	deps := &pipeline.Deps{
		Adapters: registry,
		Store:    b.store,
		Quota:    b.ledger,
		Scorer:   scoring.NewRules(cfg.Scoring.Weights, cfg.TargetSeniority(), nil),
		Refiner:  refiner,
		Logger:   log,
	}

	return pipeline.New(&pipeline.Config{
		Searches: cfg.Searches,
		SeenTTL:  cfg.SeenTTL(),
	}, deps)
}
