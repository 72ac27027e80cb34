package analytics

import (
	"context"
	"time"
)

// CreativeSource lists a campaign's creatives. An error signals failure;
// an empty slice signals a campaign without creatives.
type CreativeSource interface {
	GetCampaignCreatives(ctx context.Context, campaignID string) ([]Creative, error)
}

// AdPlatform is the ad platform API used by the pipeline.
type AdPlatform interface {
	CreativeSource
	GetCampaigns(ctx context.Context, accountID string) ([]Campaign, error)
	GetOrganizationShares(ctx context.Context, orgID string, start, count int) ([]Share, error)
}

// PerformanceSource reads campaign reporting from the ad platform.
type PerformanceSource interface {
	GetCampaignPerformance(ctx context.Context, campaignIDs []string, since time.Time) ([]CampaignAnalytics, error)
	GetCampaignDemographics(ctx context.Context, campaignID string) ([]DemographicRow, error)
}

// Scraper triggers and reads reactions scraper runs.
type Scraper interface {
	Trigger(ctx context.Context, postURL string, maxItems int) (*ScraperRun, error)
	Poll(ctx context.Context, runID string) (*ScraperRun, error)
	FetchDataset(ctx context.Context, datasetID string) ([]ScrapedReaction, error)
}

// ProfileData is what an enrichment run learns about a profile.
type ProfileData struct {
	Headline       string
	Title          string
	Company        string
	Location       string
	ProfilePicture string
}

// ProfileEnricher scrapes a single profile.
type ProfileEnricher interface {
	EnrichProfile(ctx context.Context, profileURL string) (*ProfileData, error)
}

// URNResolver turns URNs into labels. Resolve never fails: it falls back to a
// label derived from the URN itself.
type URNResolver interface {
	Resolve(ctx context.Context, urn string) string
}
