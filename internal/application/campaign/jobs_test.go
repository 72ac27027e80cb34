package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSyncer_SyncAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("stores campaigns and syncs their posts", func(t *testing.T) {
		repos := newRepos(t)
		platform := &MockPlatform{}
		platform.On("GetCampaigns", mock.Anything, "acc").Return([]analytics.Campaign{
			{ID: "c1", AccountID: "acc", Name: "Spring Launch"},
		}, nil)
		platform.On("GetCampaignCreatives", mock.Anything, "c1").Return(syncCreatives(), nil)

		s := NewSyncer(platform, repos.Posts, repos.Campaigns, NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns), nil)
		res, err := s.SyncAccount(ctx, platform, "acc")
		require.NoError(t, err)
		assert.Equal(t, 1, res.TotalCampaigns)
		assert.Equal(t, 1, res.SuccessfulCampaigns)
		assert.Equal(t, 2, res.TotalPostsCreated)

		stored, err := repos.Campaigns.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Spring Launch", stored.Name)
	})

	t.Run("stores campaign performance", func(t *testing.T) {
		repos := newRepos(t)
		platform := &MockPlatform{}
		platform.On("GetCampaigns", mock.Anything, "acc").Return([]analytics.Campaign{
			{ID: "c1", AccountID: "acc", Name: "Spring Launch"},
		}, nil)
		platform.On("GetCampaignCreatives", mock.Anything, "c1").Return(syncCreatives(), nil)
		platform.On("GetCampaignPerformance", mock.Anything, []string{"c1"}, mock.AnythingOfType("time.Time")).Return(perfRows("c1"), nil)
		platform.On("GetCampaignDemographics", mock.Anything, "c1").Return(demoRows("c1"), nil)

		s := NewSyncer(platform, repos.Posts, repos.Campaigns, NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns), nil).
			WithPerformance(platform, repos.Analytics)
		res, err := s.SyncAccount(ctx, platform, "acc")
		require.NoError(t, err)
		require.NotNil(t, res.Performance)
		assert.Equal(t, 2, res.Performance.AnalyticsRows)
		assert.Equal(t, 2, res.Performance.DemographicRows)
		assert.Empty(t, res.Errors)

		for _, call := range platform.Calls {
			if call.Method == "GetCampaignPerformance" {
				since := call.Arguments.Get(2).(time.Time)
				assert.WithinDuration(t, time.Now().Add(-PerformanceLookback), since, 48*time.Hour)
			}
		}

		stored, err := repos.Analytics.FindByCampaign(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})

	t.Run("performance failure keeps the post sync", func(t *testing.T) {
		repos := newRepos(t)
		platform := &MockPlatform{}
		platform.On("GetCampaigns", mock.Anything, "acc").Return([]analytics.Campaign{
			{ID: "c1", AccountID: "acc", Name: "Spring Launch"},
		}, nil)
		platform.On("GetCampaignCreatives", mock.Anything, "c1").Return(syncCreatives(), nil)
		platform.On("GetCampaignPerformance", mock.Anything, []string{"c1"}, mock.Anything).Return(nil, errors.New("throttled"))

		s := NewSyncer(platform, repos.Posts, repos.Campaigns, NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns), nil).
			WithPerformance(platform, repos.Analytics)
		res, err := s.SyncAccount(ctx, platform, "acc")
		require.NoError(t, err)
		assert.Equal(t, 2, res.TotalPostsCreated)
		assert.Nil(t, res.Performance)
		require.NotEmpty(t, res.Errors)
		assert.Equal(t, "performance", res.Errors[len(res.Errors)-1].Item)
	})

	t.Run("platform failure", func(t *testing.T) {
		repos := newRepos(t)
		platform := &MockPlatform{}
		platform.On("GetCampaigns", mock.Anything, "acc").Return(nil, errors.New("boom"))

		s := NewSyncer(platform, repos.Posts, repos.Campaigns, NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns), nil)
		_, err := s.SyncAccount(ctx, platform, "acc")
		assert.ErrorIs(t, err, analytics.ErrUpstreamUnavailable)
	})
}

func TestSyncer_ResyncJob(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	platform := &MockPlatform{}
	platform.On("GetCampaigns", mock.Anything, "acc").Return([]analytics.Campaign{}, nil)

	s := NewSyncer(platform, repos.Posts, repos.Campaigns, NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns), nil)
	locks := cache.NewInMemoryCache(0)
	defer func() { _ = locks.Close() }()

	job := s.ResyncJob("@daily", platform, "acc", locks)
	assert.Equal(t, JobResync, job.Name)
	assert.Equal(t, "@daily", job.Schedule)
	require.NoError(t, job.Run(ctx))
	platform.AssertNumberOfCalls(t, "GetCampaigns", 1)

	t.Run("held lock skips the run", func(t *testing.T) {
		ok, err := locks.SetNX(ctx, "lock:"+JobResync+":acc", []byte("other"), 0)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, job.Run(ctx))
		platform.AssertNumberOfCalls(t, "GetCampaigns", 1)
	})
}
