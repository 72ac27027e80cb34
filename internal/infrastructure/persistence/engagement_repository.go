package persistence

import (
	"context"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEngagementRepository implements analytics.EngagementRepository using GORM
type GormEngagementRepository struct {
	db *gorm.DB
}

// NewGormEngagementRepository creates a new GormEngagementRepository
func NewGormEngagementRepository(db *gorm.DB) *GormEngagementRepository {
	return &GormEngagementRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormEngagementRepository) WithTx(tx *gorm.DB) *GormEngagementRepository {
	return &GormEngagementRepository{db: tx}
}

// FindByPost returns the engagements of a post joined with their persons
func (r *GormEngagementRepository) FindByPost(ctx context.Context, postID uuid.UUID) ([]analytics.Engagement, error) {
	var rows []models.EngagementModel
	if err := r.db.WithContext(ctx).
		Preload("Person").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEngagements(rows), nil
}

// FindOrphansByPost returns the engagements of a post with no linked person
func (r *GormEngagementRepository) FindOrphansByPost(ctx context.Context, postID uuid.UUID) ([]analytics.Engagement, error) {
	var rows []models.EngagementModel
	if err := r.db.WithContext(ctx).
		Where("post_id = ? AND person_id IS NULL", postID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEngagements(rows), nil
}

func toEngagements(rows []models.EngagementModel) []analytics.Engagement {
	out := make([]analytics.Engagement, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// CountByPost counts the engagements of a post
func (r *GormEngagementRepository) CountByPost(ctx context.Context, postID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.EngagementModel{}).
		Where("post_id = ?", postID).
		Count(&n).Error
	return n, err
}

// Upsert inserts engagements or updates them by ID
func (r *GormEngagementRepository) Upsert(ctx context.Context, engagements ...*analytics.Engagement) error {
	if len(engagements) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]*models.EngagementModel, len(engagements))
	for i, e := range engagements {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		rows[i] = models.EngagementModelFromDomain(e)
	}
	err := inChunks(rows, batchSize, func(chunk []*models.EngagementModel) error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"person_id", "profile_url", "reaction_type", "engaged_at"}),
		}).Create(chunk).Error
	})
	return translateError(err)
}

// DeleteByIDs removes engagements and returns how many were deleted
func (r *GormEngagementRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := inChunks(ids, batchSize, func(chunk []uuid.UUID) error {
		result := r.db.WithContext(ctx).Where("id IN ?", chunk).Delete(&models.EngagementModel{})
		total += result.RowsAffected
		return result.Error
	})
	return total, err
}

// LinkPerson attaches a person to an engagement
func (r *GormEngagementRepository) LinkPerson(ctx context.Context, engagementID, personID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.EngagementModel{}).
		Where("id = ?", engagementID).
		Update("person_id", personID)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ analytics.EngagementRepository = (*GormEngagementRepository)(nil)
