package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormScraperRunRepository implements analytics.ScraperRunRepository using GORM
type GormScraperRunRepository struct {
	db *gorm.DB
}

// NewGormScraperRunRepository creates a new GormScraperRunRepository
func NewGormScraperRunRepository(db *gorm.DB) *GormScraperRunRepository {
	return &GormScraperRunRepository{db: db}
}

// LatestForURL returns the most recently started run for a post, or nil
func (r *GormScraperRunRepository) LatestForURL(ctx context.Context, postURL string) (*analytics.ScraperRun, error) {
	var m models.ScraperRunModel
	err := r.db.WithContext(ctx).
		Where("post_url = ?", postURL).
		Order("started_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// Save inserts or updates a run by id
func (r *GormScraperRunRepository) Save(ctx context.Context, run *analytics.ScraperRun) error {
	m := models.ScraperRunModel{
		ID:         run.ID,
		PostURL:    run.PostURL,
		Status:     string(run.Status),
		DatasetID:  run.DatasetID,
		ItemCount:  run.ItemCount,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = time.Now()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "dataset_id", "item_count", "finished_at"}),
	}).Create(&m).Error
	return translateError(err)
}

// GormAnalysisRepository implements analytics.AnalysisRepository using GORM
type GormAnalysisRepository struct {
	db *gorm.DB
}

// NewGormAnalysisRepository creates a new GormAnalysisRepository
func NewGormAnalysisRepository(db *gorm.DB) *GormAnalysisRepository {
	return &GormAnalysisRepository{db: db}
}

// LatestForURL returns the newest stored analysis for a post, or nil
func (r *GormAnalysisRepository) LatestForURL(ctx context.Context, postURL string) (*analytics.AnalysisRecord, error) {
	var m models.AnalysisModel
	err := r.db.WithContext(ctx).
		Where("post_url = ?", analytics.CanonicalPostURL(postURL)).
		Order("created_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// Save stores an analysis record
func (r *GormAnalysisRepository) Save(ctx context.Context, record *analytics.AnalysisRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m := models.AnalysisModel{
		ID:        record.ID,
		PostURL:   analytics.CanonicalPostURL(record.PostURL),
		PostID:    record.PostID,
		Status:    record.Status,
		Payload:   record.Payload,
		CreatedAt: record.CreatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "payload"}),
	}).Create(&m).Error
	return translateError(err)
}

var (
	_ analytics.ScraperRunRepository = (*GormScraperRunRepository)(nil)
	_ analytics.AnalysisRepository   = (*GormAnalysisRepository)(nil)
)
