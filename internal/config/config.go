// Package config loads and validates the jobsieve configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spigell/jobsieve/internal/ai"
	"github.com/spigell/jobsieve/internal/platform"
	"github.com/spigell/jobsieve/internal/quota"
	"github.com/spigell/jobsieve/internal/scoring"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	QuotaBackendStore = "store"
	QuotaBackendRedis = "redis"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	DefaultSeenTTLDays = 30
)

type Config struct {
	Searches    []platform.Search      `mapstructure:"searches"`
	Profile     ai.Profile             `mapstructure:"profile"`
	Scoring     ScoringConfig          `mapstructure:"scoring"`
	Quotas      map[string]quota.Limit `mapstructure:"quotas"`
	SeenTTLDays int                    `mapstructure:"seen-ttl-days"`
	Storage     StorageConfig          `mapstructure:"storage"`
	Assistant   AssistantConfig        `mapstructure:"assistant"`
	Platforms   PlatformsConfig        `mapstructure:"platforms"`
	Schedule    ScheduleConfig         `mapstructure:"schedule"`
	Serve       ServeConfig            `mapstructure:"serve"`
}

type ScoringConfig struct {
	Weights  scoring.Weights `mapstructure:"weights"`
	Assisted AssistedConfig  `mapstructure:"assisted"`
}

type AssistedConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Blend       scoring.Blend `mapstructure:",squash"`
	Concurrency int           `mapstructure:"concurrency"`
}

type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	SQLitePath  string      `mapstructure:"sqlite-path"`
	PostgresURL string      `mapstructure:"postgres-url"`
	Quota       QuotaConfig `mapstructure:"quota"`
}

// QuotaConfig selects where quota counters live. "store" keeps them next to the candidates.
type QuotaConfig struct {
	Backend  string `mapstructure:"backend"`
	RedisURL string `mapstructure:"redis-url"`
	Prefix   string `mapstructure:"prefix"`
}

type AssistantConfig struct {
	Provider     string       `mapstructure:"provider"`
	MaxLogLength int          `mapstructure:"max-log-length"`
	Gemini       GeminiConfig `mapstructure:"gemini"`
	OpenAI       OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api-key"`
	APIKeyFile  string  `mapstructure:"api-key-file"`
	BaseURL     string  `mapstructure:"base-url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

type PlatformsConfig struct {
	HH     HHConfig       `mapstructure:"hh"`
	Replay []ReplayConfig `mapstructure:"replay"`
}

type HHConfig struct {
	Token     string        `mapstructure:"token"`
	TokenFile string        `mapstructure:"token-file"`
	UserAgent string        `mapstructure:"user-agent"`
	PageDelay time.Duration `mapstructure:"page-delay"`
}

// ReplayConfig serves a platform from a file of captured records.
type ReplayConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	w := scoring.DefaultWeights()
	v.SetDefault("scoring.weights.title-match-bonus", w.TitleMatchBonus)
	v.SetDefault("scoring.weights.seniority-match-bonus", w.SeniorityMatchBonus)
	v.SetDefault("scoring.weights.easy-apply-bonus", w.EasyApplyBonus)
	v.SetDefault("scoring.weights.remote-bonus", w.RemoteBonus)
	v.SetDefault("scoring.weights.recency-weight", w.RecencyWeight)

	b := scoring.DefaultBlend()
	v.SetDefault("scoring.assisted.enabled", false)
	v.SetDefault("scoring.assisted.rule-weight", b.RuleWeight)
	v.SetDefault("scoring.assisted.assisted-weight", b.AssistedWeight)
	v.SetDefault("scoring.assisted.concurrency", 4)

	v.SetDefault("seen-ttl-days", DefaultSeenTTLDays)

	v.SetDefault("storage.backend", StorageSQLite)
	v.SetDefault("storage.sqlite-path", "jobsieve.db")
	v.SetDefault("storage.quota.backend", QuotaBackendStore)
	v.SetDefault("storage.quota.prefix", "jobsieve")

	v.SetDefault("assistant.provider", ProviderGemini)
	v.SetDefault("assistant.max-log-length", 512)
	v.SetDefault("assistant.gemini.max-retries", 3)

	v.SetDefault("schedule.cron", "0 */6 * * *")
	v.SetDefault("serve.addr", ":8080")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Searches {
		c.Searches[i].Keyword = strings.TrimSpace(c.Searches[i].Keyword)
		c.Searches[i].Platform = strings.ToLower(c.Searches[i].PlatformName())
	}
	// viper lowercases map keys, platform names follow
	for i := range c.Platforms.Replay {
		c.Platforms.Replay[i].Name = strings.ToLower(strings.TrimSpace(c.Platforms.Replay[i].Name))
	}
	if len(c.Quotas) > 0 {
		quotas := make(map[string]quota.Limit, len(c.Quotas))
		for name, limit := range c.Quotas {
			quotas[strings.ToLower(strings.TrimSpace(name))] = limit
		}
		c.Quotas = quotas
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Storage.Quota.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Quota.Backend))
	c.Assistant.Provider = strings.ToLower(strings.TrimSpace(c.Assistant.Provider))
	if c.SeenTTLDays <= 0 {
		c.SeenTTLDays = DefaultSeenTTLDays
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Searches) == 0 {
		errs = append(errs, errors.New("at least one search must be configured"))
	}
	for i, s := range c.Searches {
		if s.Keyword == "" {
			errs = append(errs, fmt.Errorf("searches[%d]: keyword is required", i))
		}
		if s.Filters.MaxPages < 0 || s.Filters.Period < 0 {
			errs = append(errs, fmt.Errorf("searches[%d]: max-pages and period must not be negative", i))
		}
	}

	if err := validateWeights(c.Scoring.Weights); err != nil {
		errs = append(errs, err)
	}
	if c.Scoring.Assisted.Enabled {
		if err := c.Scoring.Assisted.Blend.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("scoring.assisted: %w", err))
		}
	}

	if _, ok := scoring.ParseSeniority(c.Profile.Seniority); !ok {
		errs = append(errs, fmt.Errorf("profile.seniority %q is not one of junior, mid, senior, staff, principal, director", c.Profile.Seniority))
	}

	searched := make(map[string]struct{}, len(c.Searches))
	for _, p := range c.SearchPlatforms() {
		searched[p] = struct{}{}
	}
	for _, platformName := range sortedKeys(c.Quotas) {
		limit := c.Quotas[platformName]
		if limit.MaxSearchesPerDay < 0 || limit.MaxCandidatesPerDay < 0 {
			errs = append(errs, fmt.Errorf("quotas.%s: limits must not be negative", platformName))
		}
		if _, ok := searched[platformName]; !ok && len(c.Searches) > 0 {
			errs = append(errs, fmt.Errorf("quotas.%s: no configured search uses this platform", platformName))
		}
	}

	switch c.Storage.Backend {
	case StorageSQLite, StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresURL) == "" {
			errs = append(errs, errors.New("storage.postgres-url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Storage.Quota.Backend {
	case QuotaBackendStore:
	case QuotaBackendRedis:
		if strings.TrimSpace(c.Storage.Quota.RedisURL) == "" {
			errs = append(errs, errors.New("storage.quota.redis-url is required for the redis quota backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown quota backend %q", c.Storage.Quota.Backend))
	}

	if c.Scoring.Assisted.Enabled {
		switch c.Assistant.Provider {
		case ProviderGemini, ProviderOpenAI:
		default:
			errs = append(errs, fmt.Errorf("unknown assistant provider %q", c.Assistant.Provider))
		}
	}

	for i, r := range c.Platforms.Replay {
		if strings.TrimSpace(r.Path) == "" {
			errs = append(errs, fmt.Errorf("platforms.replay[%d]: path is required", i))
		}
	}

	return errors.Join(errs...)
}

func sortedKeys(m map[string]quota.Limit) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateWeights(w scoring.Weights) error {
	named := map[string]float64{
		"title-match-bonus":     w.TitleMatchBonus,
		"seniority-match-bonus": w.SeniorityMatchBonus,
		"easy-apply-bonus":      w.EasyApplyBonus,
		"remote-bonus":          w.RemoteBonus,
	}
	for name, value := range named {
		if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("scoring.weights.%s must be a non-negative number, got %v", name, value)
		}
	}
	if w.RecencyWeight < 0 || w.RecencyWeight > 1 || math.IsNaN(w.RecencyWeight) {
		return fmt.Errorf("scoring.weights.recency-weight must be within [0, 1], got %v", w.RecencyWeight)
	}
	return nil
}

// SeenTTL is the already-seen window.
func (c *Config) SeenTTL() time.Duration {
	return time.Duration(c.SeenTTLDays) * 24 * time.Hour
}

// TargetSeniority is the parsed profile seniority. Validate guarantees it is known.
func (c *Config) TargetSeniority() scoring.Seniority {
	s, _ := scoring.ParseSeniority(c.Profile.Seniority)
	return s
}

// SearchPlatforms returns the distinct platforms of the configured searches, in order of appearance.
func (c *Config) SearchPlatforms() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range c.Searches {
		p := s.PlatformName()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
