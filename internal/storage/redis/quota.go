// Package redis keeps the daily quota counters in Redis so several hosts share one budget.
package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

const (
	fieldSearches   = "searches_run"
	fieldCandidates = "candidates_found"
)

// QuotaStore implements storage.QuotaStore on a hash per (platform, date).
// Hashes carry no TTL; past days stay readable like the other backends.
type QuotaStore struct {
	client redis.UniversalClient
	prefix string
}

// Dial parses redisURL and verifies connectivity.
func Dial(ctx context.Context, redisURL, prefix string) (*QuotaStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.Unavailable("redis ping", err)
	}

	return New(client, prefix), nil
}

func New(client redis.UniversalClient, prefix string) *QuotaStore {
	if prefix == "" {
		prefix = "jobsieve"
	}
	return &QuotaStore{client: client, prefix: prefix}
}

func (q *QuotaStore) key(platform, date string) string {
	return fmt.Sprintf("%s:quota:%s:%s", q.prefix, platform, date)
}

func (q *QuotaStore) GetQuota(ctx context.Context, platform, date string) (jobs.QuotaRecord, error) {
	values, err := q.client.HGetAll(ctx, q.key(platform, date)).Result()
	if err != nil {
		return jobs.QuotaRecord{}, storage.Unavailable("get quota", err)
	}

	rec := jobs.QuotaRecord{Platform: platform, Date: date}
	if rec.SearchesRun, err = intField(values, fieldSearches); err != nil {
		return jobs.QuotaRecord{}, err
	}
	if rec.CandidatesFound, err = intField(values, fieldCandidates); err != nil {
		return jobs.QuotaRecord{}, err
	}
	return rec, nil
}

// IncrementQuota applies both HINCRBY commands in one MULTI/EXEC transaction.
func (q *QuotaStore) IncrementQuota(ctx context.Context, platform, date string, searches, candidates int) error {
	key := q.key(platform, date)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldSearches, int64(searches))
		pipe.HIncrBy(ctx, key, fieldCandidates, int64(candidates))
		return nil
	})
	if err != nil {
		return storage.Unavailable("increment quota", err)
	}
	return nil
}

func (q *QuotaStore) Close() error {
	return q.client.Close()
}

func intField(values map[string]string, field string) (int, error) {
	raw, ok := values[field]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("quota field %s=%q: %w", field, raw, err)
	}
	return n, nil
}
