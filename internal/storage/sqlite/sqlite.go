// Package sqlite is the default embedded storage backend built on gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/storage"
)

type candidateRow struct {
	ID                 uint      `gorm:"primaryKey"`
	Platform           string    `gorm:"not null;uniqueIndex:idx_candidates_key"`
	ExternalID         string    `gorm:"not null;uniqueIndex:idx_candidates_key"`
	Title              string    `gorm:"not null"`
	Company            string    `gorm:"not null;default:''"`
	Location           string    `gorm:"not null;default:''"`
	URL                string    `gorm:"not null"`
	IsEasyApply        bool      `gorm:"not null;default:false"`
	WorkplaceType      string    `gorm:"not null;default:''"`
	PostedTime         string    `gorm:"not null;default:''"`
	DescriptionSnippet string    `gorm:"not null;default:''"`
	RuleScore          float64   `gorm:"not null;default:0"`
	AssistedScore      *float64
	Reasoning          string    `gorm:"not null;default:''"`
	FinalScore         float64   `gorm:"not null;default:0;index"`
	Status             string    `gorm:"not null;default:new"`
	DiscoveredAt       time.Time `gorm:"not null"`
	FirstSeenAt        time.Time `gorm:"not null;index"`
	LastSeenAt         time.Time `gorm:"not null"`
}

func (candidateRow) TableName() string { return "candidates" }

type quotaRow struct {
	Platform        string `gorm:"primaryKey"`
	Date            string `gorm:"primaryKey"`
	SearchesRun     int    `gorm:"not null;default:0"`
	CandidatesFound int    `gorm:"not null;default:0"`
}

func (quotaRow) TableName() string { return "quota" }

type runRow struct {
	ID            string `gorm:"primaryKey"`
	InvocationID  string `gorm:"index"`
	Platform      string `gorm:"not null"`
	Keyword       string `gorm:"not null"`
	FiltersJSON   string `gorm:"not null;default:'{}'"`
	RawCount      int
	FilteredCount int
	FinalCount    int
	Status        string `gorm:"not null"`
	Error         string
	StartedAt     time.Time `gorm:"not null;index"`
	FinishedAt    time.Time `gorm:"not null"`
}

func (runRow) TableName() string { return "search_runs" }

// updatedOnConflict lists the columns overwritten when a natural key is upserted again.
// first_seen_at, discovered_at and status are deliberately absent.
var updatedOnConflict = []string{
	"title", "company", "location", "url", "is_easy_apply", "workplace_type", "posted_time",
	"description_snippet", "rule_score", "assisted_score", "reasoning", "final_score", "last_seen_at",
}

type Store struct {
	db  *gorm.DB
	now storage.Clock
}

// Open opens (creating when needed) the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, now storage.Clock) (*Store, error) {
	if now == nil {
		now = time.Now
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, storage.Unavailable("open sqlite database", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, storage.Unavailable("open sqlite database", err)
		}
		sqlDB.SetMaxOpenConns(1)
	} else if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, storage.Unavailable("enable wal", err)
	}

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, storage.Unavailable("set busy timeout", err)
	}

	if err := db.AutoMigrate(&candidateRow{}, &quotaRow{}, &runRow{}); err != nil {
		return nil, storage.Unavailable("migrate schema", err)
	}

	return &Store{db: db, now: now}, nil
}

func (s *Store) Exists(ctx context.Context, platform, externalID string, notOlderThan time.Duration) (bool, error) {
	cutoff := s.now().Add(-notOlderThan).UTC()

	var count int64
	err := s.db.WithContext(ctx).Model(&candidateRow{}).
		Where("platform = ? AND external_id = ? AND first_seen_at >= ?", platform, externalID, cutoff).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, storage.Unavailable("check candidate", err)
	}
	return count > 0, nil
}

func (s *Store) Upsert(ctx context.Context, scored jobs.ScoredCandidate) error {
	now := s.now().UTC()
	c := scored.Candidate

	firstSeen := c.DiscoveredAt.UTC()
	if c.DiscoveredAt.IsZero() {
		firstSeen = now
	}

	row := candidateRow{
		Platform:           c.Platform,
		ExternalID:         c.ExternalID,
		Title:              c.Title,
		Company:            c.Company,
		Location:           c.Location,
		URL:                c.URL,
		IsEasyApply:        c.IsEasyApplyLike,
		WorkplaceType:      string(c.WorkplaceType),
		PostedTime:         c.PostedTime,
		DescriptionSnippet: c.DescriptionSnippet,
		RuleScore:          scored.RuleScore,
		AssistedScore:      scored.AssistedScore,
		Reasoning:          scored.Reasoning,
		FinalScore:         scored.FinalScore,
		Status:             string(jobs.StatusNew),
		DiscoveredAt:       firstSeen,
		FirstSeenAt:        firstSeen,
		LastSeenAt:         now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns(updatedOnConflict),
	}).Create(&row).Error
	if err != nil {
		return storage.Unavailable("upsert candidate", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]jobs.StoredCandidate, error) {
	q := s.db.WithContext(ctx).Model(&candidateRow{}).Where("final_score >= ?", opts.MinScore)
	if opts.Platform != "" {
		q = q.Where("platform = ?", opts.Platform)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var rows []candidateRow
	if err := q.Order("final_score DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, storage.Unavailable("list candidates", err)
	}

	result := make([]jobs.StoredCandidate, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toStored())
	}
	return result, nil
}

func (s *Store) SetStatus(ctx context.Context, key jobs.Key, status jobs.Status) error {
	res := s.db.WithContext(ctx).Model(&candidateRow{}).
		Where("platform = ? AND external_id = ?", key.Platform, key.ExternalID).
		Update("status", string(status))
	if res.Error != nil {
		return storage.Unavailable("set candidate status", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("candidate %s: %w", key, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetQuota(ctx context.Context, platform, date string) (jobs.QuotaRecord, error) {
	var row quotaRow
	err := s.db.WithContext(ctx).Where("platform = ? AND date = ?", platform, date).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jobs.QuotaRecord{Platform: platform, Date: date}, nil
	}
	if err != nil {
		return jobs.QuotaRecord{}, storage.Unavailable("get quota", err)
	}
	return jobs.QuotaRecord{
		Platform:        row.Platform,
		Date:            row.Date,
		SearchesRun:     row.SearchesRun,
		CandidatesFound: row.CandidatesFound,
	}, nil
}

// IncrementQuota adds to the counters in a single INSERT .. ON CONFLICT statement so concurrent
// writers never lose increments.
func (s *Store) IncrementQuota(ctx context.Context, platform, date string, searches, candidates int) error {
	row := quotaRow{Platform: platform, Date: date, SearchesRun: searches, CandidatesFound: candidates}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"searches_run":     gorm.Expr("searches_run + ?", searches),
			"candidates_found": gorm.Expr("candidates_found + ?", candidates),
		}),
	}).Create(&row).Error
	if err != nil {
		return storage.Unavailable("increment quota", err)
	}
	return nil
}

func (s *Store) AppendRun(ctx context.Context, run jobs.SearchRunResult) error {
	row := runRow{
		ID:            run.ID,
		InvocationID:  run.InvocationID,
		Platform:      run.Platform,
		Keyword:       run.Keyword,
		FiltersJSON:   run.FiltersJSON,
		RawCount:      run.RawCount,
		FilteredCount: run.FilteredCount,
		FinalCount:    run.FinalCount,
		Status:        string(run.Status),
		Error:         run.Error,
		StartedAt:     run.StartedAt.UTC(),
		FinishedAt:    run.FinishedAt.UTC(),
	}
	if row.FiltersJSON == "" {
		row.FiltersJSON = "{}"
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return storage.Unavailable("append search run", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]jobs.SearchRunResult, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []runRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, storage.Unavailable("list search runs", err)
	}

	runs := make([]jobs.SearchRunResult, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, jobs.SearchRunResult{
			ID:            row.ID,
			InvocationID:  row.InvocationID,
			Platform:      row.Platform,
			Keyword:       row.Keyword,
			FiltersJSON:   row.FiltersJSON,
			RawCount:      row.RawCount,
			FilteredCount: row.FilteredCount,
			FinalCount:    row.FinalCount,
			Status:        jobs.RunStatus(row.Status),
			Error:         row.Error,
			StartedAt:     row.StartedAt,
			FinishedAt:    row.FinishedAt,
		})
	}
	return runs, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (row candidateRow) toStored() jobs.StoredCandidate {
	return jobs.StoredCandidate{
		ScoredCandidate: jobs.ScoredCandidate{
			Candidate: jobs.Candidate{
				ExternalID:         row.ExternalID,
				Platform:           row.Platform,
				Title:              row.Title,
				Company:            row.Company,
				Location:           row.Location,
				URL:                row.URL,
				IsEasyApplyLike:    row.IsEasyApply,
				WorkplaceType:      jobs.WorkplaceType(row.WorkplaceType),
				PostedTime:         row.PostedTime,
				DescriptionSnippet: row.DescriptionSnippet,
				DiscoveredAt:       row.DiscoveredAt,
			},
			RuleScore:     row.RuleScore,
			AssistedScore: row.AssistedScore,
			Reasoning:     row.Reasoning,
			FinalScore:    row.FinalScore,
		},
		Status:      jobs.Status(row.Status),
		FirstSeenAt: row.FirstSeenAt,
		LastSeenAt:  row.LastSeenAt,
	}
}
