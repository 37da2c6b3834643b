// Package postgres implements the storage ports on a shared PostgreSQL database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
	platform            TEXT NOT NULL,
	external_id         TEXT NOT NULL,
	title               TEXT NOT NULL,
	company             TEXT NOT NULL DEFAULT '',
	location            TEXT NOT NULL DEFAULT '',
	url                 TEXT NOT NULL,
	is_easy_apply       BOOLEAN NOT NULL DEFAULT FALSE,
	workplace_type      TEXT NOT NULL DEFAULT '',
	posted_time         TEXT NOT NULL DEFAULT '',
	description_snippet TEXT NOT NULL DEFAULT '',
	rule_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	assisted_score      DOUBLE PRECISION,
	reasoning           TEXT NOT NULL DEFAULT '',
	final_score         DOUBLE PRECISION NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'new',
	discovered_at       TIMESTAMPTZ NOT NULL,
	first_seen_at       TIMESTAMPTZ NOT NULL,
	last_seen_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (platform, external_id)
);
CREATE INDEX IF NOT EXISTS idx_candidates_final_score ON candidates (final_score DESC);

CREATE TABLE IF NOT EXISTS quota (
	platform         TEXT NOT NULL,
	date             TEXT NOT NULL,
	searches_run     INTEGER NOT NULL DEFAULT 0,
	candidates_found INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (platform, date)
);

CREATE TABLE IF NOT EXISTS search_runs (
	id             TEXT PRIMARY KEY,
	invocation_id  TEXT NOT NULL DEFAULT '',
	platform       TEXT NOT NULL,
	keyword        TEXT NOT NULL,
	filters_json   TEXT NOT NULL DEFAULT '{}',
	raw_count      INTEGER NOT NULL DEFAULT 0,
	filtered_count INTEGER NOT NULL DEFAULT 0,
	final_count    INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
);
`

const candidateColumns = `platform, external_id, title, company, location, url, is_easy_apply,
	workplace_type, posted_time, description_snippet, rule_score, assisted_score, reasoning,
	final_score, status, discovered_at, first_seen_at, last_seen_at`

type Store struct {
	pool *pgxpool.Pool
	now  storage.Clock
}

// Open creates and verifies a connection pool and ensures the schema exists.
func Open(ctx context.Context, databaseURL string, now storage.Clock) (*Store, error) {
	if now == nil {
		now = time.Now
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, storage.Unavailable("pgxpool.New", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Unavailable("postgres ping", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, storage.Unavailable("create schema", err)
	}

	return &Store{pool: pool, now: now}, nil
}

func (s *Store) Exists(ctx context.Context, platform, externalID string, notOlderThan time.Duration) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM candidates
		   WHERE platform = $1 AND external_id = $2 AND first_seen_at >= $3
		 )`,
		platform, externalID, s.now().Add(-notOlderThan),
	).Scan(&exists)
	if err != nil {
		return false, storage.Unavailable("check candidate", err)
	}
	return exists, nil
}

func (s *Store) Upsert(ctx context.Context, scored jobs.ScoredCandidate) error {
	now := s.now()
	c := scored.Candidate

	firstSeen := c.DiscoveredAt
	if firstSeen.IsZero() {
		firstSeen = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO candidates (`+candidateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'new', $15, $15, $16)
		 ON CONFLICT (platform, external_id) DO UPDATE SET
		   title = EXCLUDED.title,
		   company = EXCLUDED.company,
		   location = EXCLUDED.location,
		   url = EXCLUDED.url,
		   is_easy_apply = EXCLUDED.is_easy_apply,
		   workplace_type = EXCLUDED.workplace_type,
		   posted_time = EXCLUDED.posted_time,
		   description_snippet = EXCLUDED.description_snippet,
		   rule_score = EXCLUDED.rule_score,
		   assisted_score = EXCLUDED.assisted_score,
		   reasoning = EXCLUDED.reasoning,
		   final_score = EXCLUDED.final_score,
		   last_seen_at = EXCLUDED.last_seen_at`,
		c.Platform, c.ExternalID, c.Title, c.Company, c.Location, c.URL, c.IsEasyApplyLike,
		string(c.WorkplaceType), c.PostedTime, c.DescriptionSnippet,
		scored.RuleScore, scored.AssistedScore, scored.Reasoning, scored.FinalScore,
		firstSeen, now,
	)
	if err != nil {
		return storage.Unavailable("upsert candidate", err)
	}
	return nil
}

// listQuery numbers placeholders in the order the arguments are appended.
func listQuery(opts storage.ListOptions) (string, []any) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE final_score >= $1`
	args := []any{opts.MinScore}
	if opts.Platform != "" {
		args = append(args, opts.Platform)
		query += fmt.Sprintf(" AND platform = $%d", len(args))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY final_score DESC, first_seen_at ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]jobs.StoredCandidate, error) {
	query, args := listQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable("list candidates", err)
	}
	defer rows.Close()

	result := make([]jobs.StoredCandidate, 0)
	for rows.Next() {
		var (
			c             jobs.StoredCandidate
			workplace     string
			status        string
			assistedScore *float64
		)
		if err := rows.Scan(
			&c.Candidate.Platform, &c.Candidate.ExternalID, &c.Candidate.Title, &c.Candidate.Company,
			&c.Candidate.Location, &c.Candidate.URL, &c.Candidate.IsEasyApplyLike, &workplace,
			&c.Candidate.PostedTime, &c.Candidate.DescriptionSnippet, &c.RuleScore, &assistedScore,
			&c.Reasoning, &c.FinalScore, &status, &c.Candidate.DiscoveredAt, &c.FirstSeenAt, &c.LastSeenAt,
		); err != nil {
			return nil, storage.Unavailable("scan candidate", err)
		}
		c.Candidate.WorkplaceType = jobs.WorkplaceType(workplace)
		c.AssistedScore = assistedScore
		c.Status = jobs.Status(status)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list candidates", err)
	}
	return result, nil
}

func (s *Store) SetStatus(ctx context.Context, key jobs.Key, status jobs.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET status = $3 WHERE platform = $1 AND external_id = $2`,
		key.Platform, key.ExternalID, string(status),
	)
	if err != nil {
		return storage.Unavailable("set candidate status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s: %w", key, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetQuota(ctx context.Context, platform, date string) (jobs.QuotaRecord, error) {
	rec := jobs.QuotaRecord{Platform: platform, Date: date}
	err := s.pool.QueryRow(ctx,
		`SELECT searches_run, candidates_found FROM quota WHERE platform = $1 AND date = $2`,
		platform, date,
	).Scan(&rec.SearchesRun, &rec.CandidatesFound)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return jobs.QuotaRecord{}, storage.Unavailable("get quota", err)
	}
	return rec, nil
}

func (s *Store) IncrementQuota(ctx context.Context, platform, date string, searches, candidates int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quota (platform, date, searches_run, candidates_found)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (platform, date) DO UPDATE SET
		   searches_run = quota.searches_run + EXCLUDED.searches_run,
		   candidates_found = quota.candidates_found + EXCLUDED.candidates_found`,
		platform, date, searches, candidates,
	)
	if err != nil {
		return storage.Unavailable("increment quota", err)
	}
	return nil
}

func (s *Store) AppendRun(ctx context.Context, run jobs.SearchRunResult) error {
	filters := run.FiltersJSON
	if filters == "" {
		filters = "{}"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_runs (id, invocation_id, platform, keyword, filters_json, raw_count,
		   filtered_count, final_count, status, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.InvocationID, run.Platform, run.Keyword, filters, run.RawCount,
		run.FilteredCount, run.FinalCount, string(run.Status), run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return storage.Unavailable("append search run", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]jobs.SearchRunResult, error) {
	query := `SELECT id, invocation_id, platform, keyword, filters_json, raw_count, filtered_count,
	            final_count, status, error, started_at, finished_at
	          FROM search_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storage.Unavailable("list search runs", err)
	}
	defer rows.Close()

	runs := make([]jobs.SearchRunResult, 0)
	for rows.Next() {
		var (
			r      jobs.SearchRunResult
			status string
		)
		if err := rows.Scan(
			&r.ID, &r.InvocationID, &r.Platform, &r.Keyword, &r.FiltersJSON, &r.RawCount,
			&r.FilteredCount, &r.FinalCount, &status, &r.Error, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, storage.Unavailable("scan search run", err)
		}
		r.Status = jobs.RunStatus(status)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("list search runs", err)
	}
	return runs, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
