package persistence

import (
	"context"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPostCampaignRepository implements analytics.PostCampaignRepository using GORM
type GormPostCampaignRepository struct {
	db *gorm.DB
}

// NewGormPostCampaignRepository creates a new GormPostCampaignRepository
func NewGormPostCampaignRepository(db *gorm.DB) *GormPostCampaignRepository {
	return &GormPostCampaignRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormPostCampaignRepository) WithTx(tx *gorm.DB) *GormPostCampaignRepository {
	return &GormPostCampaignRepository{db: tx}
}

// Upsert writes links idempotently on (post, campaign). A repeated link
// refreshes association type and confidence but keeps its creation time.
func (r *GormPostCampaignRepository) Upsert(ctx context.Context, links ...analytics.PostCampaignLink) error {
	if len(links) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.PostCampaignModel, 0, len(links))
	seen := make(map[string]int, len(links))
	for _, l := range links {
		created := l.CreatedAt
		if created.IsZero() {
			created = now
		}
		m := models.PostCampaignModel{
			PostID:          l.PostID,
			CampaignID:      l.CampaignID,
			AssociationType: string(l.AssociationType),
			Confidence:      l.Confidence,
			CreatedAt:       created,
		}
		key := l.PostID.String() + "/" + l.CampaignID
		if i, dup := seen[key]; dup {
			rows[i] = m
			continue
		}
		seen[key] = len(rows)
		rows = append(rows, m)
	}
	err := inChunks(rows, batchSize, func(chunk []models.PostCampaignModel) error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "post_id"}, {Name: "campaign_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"association_type", "confidence"}),
		}).Create(&chunk).Error
	})
	return translateError(err)
}

// Delete removes one link. Deleting a missing link is not an error.
func (r *GormPostCampaignRepository) Delete(ctx context.Context, postID uuid.UUID, campaignID string) error {
	return r.db.WithContext(ctx).
		Where("post_id = ? AND campaign_id = ?", postID, campaignID).
		Delete(&models.PostCampaignModel{}).Error
}

// FindByPost returns the links of a post, most confident first
func (r *GormPostCampaignRepository) FindByPost(ctx context.Context, postID uuid.UUID) ([]analytics.PostCampaignLink, error) {
	return r.find(ctx, "post_id = ?", postID)
}

// FindByCampaign returns the links of a campaign, most confident first
func (r *GormPostCampaignRepository) FindByCampaign(ctx context.Context, campaignID string) ([]analytics.PostCampaignLink, error) {
	return r.find(ctx, "campaign_id = ?", campaignID)
}

func (r *GormPostCampaignRepository) find(ctx context.Context, cond string, arg any) ([]analytics.PostCampaignLink, error) {
	var rows []models.PostCampaignModel
	if err := r.db.WithContext(ctx).
		Where(cond, arg).
		Order("confidence DESC").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]analytics.PostCampaignLink, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ analytics.PostCampaignRepository = (*GormPostCampaignRepository)(nil)
