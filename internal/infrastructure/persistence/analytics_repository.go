package persistence

import (
	"context"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAnalyticsRepository implements analytics.AnalyticsRepository using GORM
type GormAnalyticsRepository struct {
	db *gorm.DB
}

// NewGormAnalyticsRepository creates a new GormAnalyticsRepository
func NewGormAnalyticsRepository(db *gorm.DB) *GormAnalyticsRepository {
	return &GormAnalyticsRepository{db: db}
}

// FindByCampaign returns the reporting rows of one campaign, oldest first
func (r *GormAnalyticsRepository) FindByCampaign(ctx context.Context, campaignID string) ([]analytics.CampaignAnalytics, error) {
	return r.FindByCampaigns(ctx, []string{campaignID})
}

// FindByCampaigns returns the reporting rows of several campaigns
func (r *GormAnalyticsRepository) FindByCampaigns(ctx context.Context, campaignIDs []string) ([]analytics.CampaignAnalytics, error) {
	if len(campaignIDs) == 0 {
		return []analytics.CampaignAnalytics{}, nil
	}
	var rows []models.CampaignAnalyticsModel
	if err := r.db.WithContext(ctx).
		Where("campaign_id IN ?", campaignIDs).
		Order("campaign_id, date").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]analytics.CampaignAnalytics, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Upsert inserts reporting rows or replaces them on (campaign, date)
func (r *GormAnalyticsRepository) Upsert(ctx context.Context, rows ...analytics.CampaignAnalytics) error {
	if len(rows) == 0 {
		return nil
	}
	ms := make([]models.CampaignAnalyticsModel, len(rows))
	for i, row := range rows {
		ms[i] = models.CampaignAnalyticsModel{
			CampaignID:  row.CampaignID,
			Date:        row.Date.UTC().Truncate(24 * time.Hour),
			Impressions: row.Impressions,
			Clicks:      row.Clicks,
			Engagements: row.Engagements,
			Spend:       row.Spend,
		}
	}
	err := inChunks(ms, batchSize, func(chunk []models.CampaignAnalyticsModel) error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"impressions", "clicks", "engagements", "spend"}),
		}).Create(&chunk).Error
	})
	return translateError(err)
}

// FindDemographics returns the audience breakdown rows of the campaigns
func (r *GormAnalyticsRepository) FindDemographics(ctx context.Context, campaignIDs []string) ([]analytics.DemographicRow, error) {
	if len(campaignIDs) == 0 {
		return []analytics.DemographicRow{}, nil
	}
	var rows []models.DemographicModel
	if err := r.db.WithContext(ctx).
		Where("campaign_id IN ?", campaignIDs).
		Order("campaign_id, pivot_type, impressions DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]analytics.DemographicRow, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// UpsertDemographics inserts breakdown rows or replaces them on
// (campaign, pivot type, pivot value)
func (r *GormAnalyticsRepository) UpsertDemographics(ctx context.Context, rows ...analytics.DemographicRow) error {
	if len(rows) == 0 {
		return nil
	}
	ms := make([]models.DemographicModel, len(rows))
	for i, row := range rows {
		ms[i] = models.DemographicModel{
			CampaignID:  row.CampaignID,
			PivotType:   row.PivotType,
			PivotValue:  row.PivotValue,
			Impressions: row.Impressions,
			Clicks:      row.Clicks,
			Engagements: row.Engagements,
			Spend:       row.Spend,
		}
	}
	err := inChunks(ms, batchSize, func(chunk []models.DemographicModel) error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "pivot_type"}, {Name: "pivot_value"}},
			DoUpdates: clause.AssignmentColumns([]string{"impressions", "clicks", "engagements", "spend"}),
		}).Create(&chunk).Error
	})
	return translateError(err)
}

var _ analytics.AnalyticsRepository = (*GormAnalyticsRepository)(nil)
