package analytics

import (
	"context"

	"github.com/google/uuid"
)

// Repositories return shared.ErrNotFound when a single record lookup misses.

// PostRepository persists posts keyed by canonical URL.
type PostRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Post, error)
	FindByURL(ctx context.Context, url string) (*Post, error)
	// Upsert inserts or updates by URL. On conflict the stored ID is written
	// back to post.ID.
	Upsert(ctx context.Context, post *Post) error
	SetPrimaryCampaign(ctx context.Context, postID uuid.UUID, campaignID string) error
	ListIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// CampaignRepository persists campaigns and their creatives.
type CampaignRepository interface {
	FindByID(ctx context.Context, id string) (*Campaign, error)
	FindByIDs(ctx context.Context, ids []string) ([]Campaign, error)
	ListByAccount(ctx context.Context, accountID string) ([]Campaign, error)
	Upsert(ctx context.Context, campaigns ...*Campaign) error
	UpsertCreatives(ctx context.Context, creatives ...Creative) error
	FindCreatives(ctx context.Context, campaignID string) ([]Creative, error)
	// FindCreativesReferencing returns creatives whose references contain postID.
	FindCreativesReferencing(ctx context.Context, postID string) ([]Creative, error)
}

// AnalyticsRepository persists campaign reporting rows.
type AnalyticsRepository interface {
	FindByCampaign(ctx context.Context, campaignID string) ([]CampaignAnalytics, error)
	FindByCampaigns(ctx context.Context, campaignIDs []string) ([]CampaignAnalytics, error)
	Upsert(ctx context.Context, rows ...CampaignAnalytics) error
	FindDemographics(ctx context.Context, campaignIDs []string) ([]DemographicRow, error)
	UpsertDemographics(ctx context.Context, rows ...DemographicRow) error
}

// EngagementRepository persists engagements.
type EngagementRepository interface {
	// FindByPost returns every engagement of the post joined with its person.
	FindByPost(ctx context.Context, postID uuid.UUID) ([]Engagement, error)
	// FindOrphansByPost returns the engagements of the post with no person.
	FindOrphansByPost(ctx context.Context, postID uuid.UUID) ([]Engagement, error)
	CountByPost(ctx context.Context, postID uuid.UUID) (int64, error)
	Upsert(ctx context.Context, engagements ...*Engagement) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	LinkPerson(ctx context.Context, engagementID, personID uuid.UUID) error
}

// EnrichmentStats counts persons by enrichment state.
type EnrichmentStats struct {
	Total      int64 `json:"total"`
	Enriched   int64 `json:"enriched"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Failed     int64 `json:"failed"`
}

// Rate returns the enriched share as a percentage.
func (s EnrichmentStats) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Enriched) / float64(s.Total) * 100
}

// PersonRepository persists persons keyed by case-insensitive profile URL.
type PersonRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Person, error)
	FindByProfileURLs(ctx context.Context, urls []string) ([]Person, error)
	// Upsert inserts or updates by profile URL, writing stored IDs back.
	Upsert(ctx context.Context, persons ...*Person) error
	Update(ctx context.Context, person *Person) error
	MarkForEnrichment(ctx context.Context, ids []uuid.UUID, priority int) (int64, error)
	// FindEnrichmentQueue returns pending persons by descending priority.
	FindEnrichmentQueue(ctx context.Context, limit int) ([]Person, error)
	// FindUnqueued returns persons never enriched and not yet queued.
	FindUnqueued(ctx context.Context, limit int) ([]Person, error)
	EnrichmentStats(ctx context.Context) (EnrichmentStats, error)
}

// PostCampaignRepository persists the post to campaign junction.
type PostCampaignRepository interface {
	// Upsert is idempotent on (PostID, CampaignID).
	Upsert(ctx context.Context, links ...PostCampaignLink) error
	Delete(ctx context.Context, postID uuid.UUID, campaignID string) error
	FindByPost(ctx context.Context, postID uuid.UUID) ([]PostCampaignLink, error)
	FindByCampaign(ctx context.Context, campaignID string) ([]PostCampaignLink, error)
}

// ScraperRunRepository remembers scraper runs per post URL.
type ScraperRunRepository interface {
	LatestForURL(ctx context.Context, postURL string) (*ScraperRun, error)
	Save(ctx context.Context, run *ScraperRun) error
}

// AnalysisRepository stores finished analyses.
type AnalysisRepository interface {
	LatestForURL(ctx context.Context, postURL string) (*AnalysisRecord, error)
	Save(ctx context.Context, record *AnalysisRecord) error
}
