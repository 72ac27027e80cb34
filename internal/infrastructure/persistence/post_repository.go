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

// GormPostRepository implements analytics.PostRepository using GORM
type GormPostRepository struct {
	db *gorm.DB
}

// NewGormPostRepository creates a new GormPostRepository
func NewGormPostRepository(db *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormPostRepository) WithTx(tx *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: tx}
}

// FindByID finds a post by its ID
func (r *GormPostRepository) FindByID(ctx context.Context, id uuid.UUID) (*analytics.Post, error) {
	var m models.PostModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return m.ToDomain(), nil
}

// FindByURL finds a post by the canonical form of url
func (r *GormPostRepository) FindByURL(ctx context.Context, url string) (*analytics.Post, error) {
	var m models.PostModel
	if err := r.db.WithContext(ctx).
		Where("url = ?", analytics.CanonicalPostURL(url)).
		First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return m.ToDomain(), nil
}

// keepIfEmpty keeps the stored text column when the incoming value is empty.
func keepIfEmpty(table, column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value:  gorm.Expr("COALESCE(NULLIF(excluded."+column+", ''), "+table+"."+column+")"),
	}
}

// keepIfZero keeps the stored numeric column when the incoming value is zero.
func keepIfZero(table, column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value:  gorm.Expr("CASE WHEN excluded." + column + " <> 0 THEN excluded." + column + " ELSE " + table + "." + column + " END"),
	}
}

func keepIfNull(table, column string) clause.Assignment {
	return clause.Assignment{
		Column: clause.Column{Name: column},
		Value:  gorm.Expr("COALESCE(excluded." + column + ", " + table + "." + column + ")"),
	}
}

// Upsert inserts the post or merges it into the stored row with the same URL.
// Empty incoming fields never overwrite stored values and the primary
// campaign is left alone. The stored ID is written back to post.ID.
func (r *GormPostRepository) Upsert(ctx context.Context, post *analytics.Post) error {
	post.URL = analytics.CanonicalPostURL(post.URL)
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	m := models.PostModelFromDomain(post)
	const table = "posts"
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.Set{
			keepIfEmpty(table, "title"),
			keepIfEmpty(table, "content"),
			keepIfEmpty(table, "description"),
			keepIfEmpty(table, "image_url"),
			keepIfEmpty(table, "author_name"),
			keepIfNull(table, "posted_at"),
			keepIfZero(table, "campaign_spend"),
			keepIfZero(table, "total_engagements"),
			{Column: clause.Column{Name: "is_organic"}, Value: gorm.Expr("excluded.is_organic")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(m).Error
	if err != nil {
		return translateError(err)
	}

	var stored models.PostModel
	if err := r.db.WithContext(ctx).
		Select("id", "created_at", "primary_campaign_id").
		Where("url = ?", post.URL).
		First(&stored).Error; err != nil {
		return translateError(err)
	}
	post.ID = stored.ID
	post.CreatedAt = stored.CreatedAt
	post.PrimaryCampaignID = stored.PrimaryCampaignID
	return nil
}

// SetPrimaryCampaign records the primary campaign of a post
func (r *GormPostRepository) SetPrimaryCampaign(ctx context.Context, postID uuid.UUID, campaignID string) error {
	result := r.db.WithContext(ctx).Model(&models.PostModel{}).
		Where("id = ?", postID).
		Updates(map[string]any{"primary_campaign_id": campaignID, "updated_at": time.Now()})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListIDs returns the IDs of the most recently created posts
func (r *GormPostRepository) ListIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.PostModel{}).
		Order("created_at DESC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

var _ analytics.PostRepository = (*GormPostRepository)(nil)
