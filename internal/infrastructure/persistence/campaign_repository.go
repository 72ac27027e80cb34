package persistence

import (
	"context"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCampaignRepository implements analytics.CampaignRepository using GORM
type GormCampaignRepository struct {
	db *gorm.DB
}

// NewGormCampaignRepository creates a new GormCampaignRepository
func NewGormCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormCampaignRepository) WithTx(tx *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: tx}
}

// FindByID finds a campaign by its platform id
func (r *GormCampaignRepository) FindByID(ctx context.Context, id string) (*analytics.Campaign, error) {
	var m models.CampaignModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return m.ToDomain(), nil
}

// FindByIDs finds campaigns by platform id; unknown ids are skipped
func (r *GormCampaignRepository) FindByIDs(ctx context.Context, ids []string) ([]analytics.Campaign, error) {
	if len(ids) == 0 {
		return []analytics.Campaign{}, nil
	}
	var rows []models.CampaignModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCampaigns(rows), nil
}

// ListByAccount returns the campaigns of an ad account
func (r *GormCampaignRepository) ListByAccount(ctx context.Context, accountID string) ([]analytics.Campaign, error) {
	var rows []models.CampaignModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCampaigns(rows), nil
}

func toCampaigns(rows []models.CampaignModel) []analytics.Campaign {
	out := make([]analytics.Campaign, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Upsert inserts campaigns or replaces them by platform id
func (r *GormCampaignRepository) Upsert(ctx context.Context, campaigns ...*analytics.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]*models.CampaignModel, len(campaigns))
	for i, c := range campaigns {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		rows[i] = models.CampaignModelFromDomain(c)
	}
	err := inChunks(rows, batchSize, func(chunk []*models.CampaignModel) error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"account_id", "campaign_group_id", "name", "description", "status", "type",
				"schedule_start", "schedule_end", "targeting", "creative_ids",
				"daily_budget", "total_budget", "updated_at",
			}),
		}).Create(chunk).Error
	})
	return translateError(err)
}

// UpsertCreatives inserts creatives or replaces them by id
func (r *GormCampaignRepository) UpsertCreatives(ctx context.Context, creatives ...analytics.Creative) error {
	if len(creatives) == 0 {
		return nil
	}
	rows := make([]models.CreativeModel, len(creatives))
	for i, c := range creatives {
		rows[i] = models.CreativeModelFromDomain(c)
	}
	err := inChunks(rows, batchSize, func(chunk []models.CreativeModel) error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"campaign_id", "type", "status", "reference", "share_url",
				"ugc_post_reference", "title", "text", "updated_at",
			}),
		}).Create(&chunk).Error
	})
	return translateError(err)
}

// FindCreatives returns the creatives of a campaign
func (r *GormCampaignRepository) FindCreatives(ctx context.Context, campaignID string) ([]analytics.Creative, error) {
	var rows []models.CreativeModel
	if err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCreatives(rows), nil
}

// FindCreativesReferencing returns creatives whose share URL, reference or
// UGC post reference contains postID
func (r *GormCampaignRepository) FindCreativesReferencing(ctx context.Context, postID string) ([]analytics.Creative, error) {
	if postID == "" {
		return []analytics.Creative{}, nil
	}
	pattern := "%" + postID + "%"
	var rows []models.CreativeModel
	if err := r.db.WithContext(ctx).
		Where("reference LIKE ? OR share_url LIKE ? OR ugc_post_reference LIKE ?", pattern, pattern, pattern).
		Order("campaign_id, id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toCreatives(rows), nil
}

func toCreatives(rows []models.CreativeModel) []analytics.Creative {
	out := make([]analytics.Creative, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ analytics.CampaignRepository = (*GormCampaignRepository)(nil)
