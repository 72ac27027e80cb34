package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/application/campaign"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPerformance struct {
	rows []analytics.CampaignAnalytics
}

func (s staticPerformance) GetCampaignPerformance(_ context.Context, _ []string, _ time.Time) ([]analytics.CampaignAnalytics, error) {
	return s.rows, nil
}

func (s staticPerformance) GetCampaignDemographics(_ context.Context, _ string) ([]analytics.DemographicRow, error) {
	return nil, nil
}

func TestPerformanceScore_SyncedReporting(t *testing.T) {
	ctx := context.Background()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: persistence.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(ctx))
	t.Cleanup(func() { _ = db.Close() })
	repos := db.Repositories()

	c := newTestCorrelator(nil, WithAnalytics(repos.Analytics))
	target := &analytics.Campaign{ID: "c1"}
	audience := &postAudience{engagements: make([]analytics.Engagement, 10)}
	require.Equal(t, performanceNoAnalytics, c.performanceScore(ctx, target, audience))

	day := fixedNow.Truncate(24 * time.Hour)
	source := staticPerformance{rows: []analytics.CampaignAnalytics{
		{CampaignID: "c1", Date: day.AddDate(0, 0, -2), Impressions: 600, Spend: decimal.NewFromInt(10)},
		{CampaignID: "c1", Date: day.AddDate(0, 0, -1), Impressions: 400, Spend: decimal.NewFromInt(5)},
	}}
	syncer := campaign.NewSyncer(nil, repos.Posts, repos.Campaigns, nil, nil).WithPerformance(source, repos.Analytics)
	res, err := syncer.SyncPerformance(ctx, []string{"c1"}, day.AddDate(0, 0, -2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.AnalyticsRows)

	assert.InDelta(t, 0.68, c.performanceScore(ctx, target, audience), 1e-9)
	assert.Equal(t, performanceNoVolume, c.performanceScore(ctx, target, &postAudience{}))
}
