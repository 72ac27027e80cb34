package campaign

import (
	"context"
	"errors"
	"testing"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const sharePostURL = "https://www.linkedin.com/feed/update/urn:li:share:7100000000000000001"

func linkerCampaigns() []*analytics.Campaign {
	return []*analytics.Campaign{
		{ID: "c1", AccountID: "acc", Name: "Spring Launch", Status: "ACTIVE"},
		{ID: "c2", AccountID: "acc", Name: "Retargeting", Status: "ACTIVE"},
		{ID: "c3", AccountID: "acc", Name: "Brand", Status: "PAUSED"},
	}
}

func primaryOf(t *testing.T, l *Linker, post *analytics.Post) string {
	t.Helper()
	stored, err := l.posts.FindByID(context.Background(), post.ID)
	require.NoError(t, err)
	return stored.PrimaryCampaignID
}

func TestLinker_LinkPostToCampaigns(t *testing.T) {
	ctx := context.Background()

	t.Run("first write keeps the primary campaign", func(t *testing.T) {
		repos := newRepos(t)
		saveCampaigns(t, repos, linkerCampaigns()...)
		post := savePost(t, repos, sharePostURL)
		pub := &recordingPublisher{}
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns, WithEventPublisher(pub))

		n, err := l.LinkPostToCampaigns(ctx, post.ID, []string{"c1", "c1", ""}, analytics.AssociationManual)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, "c1", primaryOf(t, l, post))

		n, err = l.LinkPostToCampaigns(ctx, post.ID, []string{"c2"}, analytics.AssociationManual)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, "c1", primaryOf(t, l, post))

		events := pub.linked()
		require.Len(t, events, 2)
		assert.True(t, events[0].Primary)
		assert.False(t, events[1].Primary)
		assert.Equal(t, "c2", events[1].CampaignID)
	})

	t.Run("highest confidence takes over", func(t *testing.T) {
		repos := newRepos(t)
		saveCampaigns(t, repos, linkerCampaigns()...)
		post := savePost(t, repos, sharePostURL)
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns,
			WithPrimaryLinkPolicy(analytics.PrimaryHighestConfidence))

		weak := &analytics.MatchResult{Campaigns: []analytics.CampaignScore{{CampaignID: "c1", Score: 0.55}}}
		require.NoError(t, l.LinkCorrelation(ctx, post, weak))
		assert.Equal(t, "c1", primaryOf(t, l, post))

		strong := &analytics.MatchResult{Campaigns: []analytics.CampaignScore{{CampaignID: "c2", Score: 0.9}}}
		require.NoError(t, l.LinkCorrelation(ctx, post, strong))
		assert.Equal(t, "c2", primaryOf(t, l, post))

		linked, err := l.GetPostCampaigns(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, linked, 2)
		assert.Equal(t, "c2", linked[0].Campaign.ID)
		assert.True(t, linked[0].Primary)
		assert.Equal(t, "Retargeting", linked[0].Campaign.Name)
		assert.Equal(t, analytics.AssociationCorrelated, linked[0].AssociationType)
		assert.InDelta(t, 0.9, linked[0].Confidence, 1e-9)
	})

	t.Run("requires a campaign", func(t *testing.T) {
		repos := newRepos(t)
		post := savePost(t, repos, sharePostURL)
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns)

		_, err := l.LinkPostToCampaigns(ctx, post.ID, []string{""}, analytics.AssociationManual)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("unknown post", func(t *testing.T) {
		repos := newRepos(t)
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns)

		_, err := l.LinkPostToCampaigns(ctx, analytics.NewPost(sharePostURL).ID, []string{"c1"}, analytics.AssociationManual)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestLinker_LinkCorrelationIgnoresNoMatch(t *testing.T) {
	repos := newRepos(t)
	post := savePost(t, repos, sharePostURL)
	l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns)

	require.NoError(t, l.LinkCorrelation(context.Background(), post, analytics.NoMatch(3)))

	links, err := repos.PostCampaigns.FindByPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestLinker_Unlink(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	saveCampaigns(t, repos, linkerCampaigns()...)
	post := savePost(t, repos, sharePostURL)
	l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns)

	_, err := l.LinkPostToCampaigns(ctx, post.ID, []string{"c1"}, analytics.AssociationManual)
	require.NoError(t, err)
	require.NoError(t, l.LinkCorrelation(ctx, post, &analytics.MatchResult{Campaigns: []analytics.CampaignScore{
		{CampaignID: "c2", Score: 0.4},
		{CampaignID: "c3", Score: 0.8},
	}}))
	require.Equal(t, "c1", primaryOf(t, l, post))

	require.NoError(t, l.Unlink(ctx, post.ID, "c2"))
	assert.Equal(t, "c1", primaryOf(t, l, post))

	require.NoError(t, l.Unlink(ctx, post.ID, "c1"))
	assert.Equal(t, "c3", primaryOf(t, l, post))

	require.NoError(t, l.Unlink(ctx, post.ID, "c3"))
	assert.Equal(t, "", primaryOf(t, l, post))
}

func TestLinker_GetCampaignPosts(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	saveCampaigns(t, repos, linkerCampaigns()...)
	first := savePost(t, repos, sharePostURL)
	second := savePost(t, repos, "https://www.linkedin.com/feed/update/urn:li:ugcPost:7100000000000000002")
	l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns)

	_, err := l.LinkPostToCampaigns(ctx, first.ID, []string{"c1"}, analytics.AssociationAuto)
	require.NoError(t, err)
	_, err = l.LinkPostToCampaigns(ctx, second.ID, []string{"c1", "c2"}, analytics.AssociationManual)
	require.NoError(t, err)

	posts, err := l.GetCampaignPosts(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	urls := []string{posts[0].Post.URL, posts[1].Post.URL}
	assert.ElementsMatch(t, []string{first.URL, second.URL}, urls)

	posts, err = l.GetCampaignPosts(ctx, "c3")
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestLinker_SearchCampaignsByPostURL(t *testing.T) {
	ctx := context.Background()

	t.Run("stored creatives", func(t *testing.T) {
		repos := newRepos(t)
		saveCampaigns(t, repos, linkerCampaigns()...)
		require.NoError(t, repos.Campaigns.UpsertCreatives(ctx,
			analytics.Creative{ID: "cr1", CampaignID: "c2", Reference: "urn:li:share:7100000000000000001"},
			analytics.Creative{ID: "cr2", CampaignID: "c3", Reference: "urn:li:share:7100000000000000009"},
		))
		platform := &MockPlatform{}
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns, WithCreativeSource(platform))

		matches, err := l.SearchCampaignsByPostURL(ctx, "acc", sharePostURL)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "c2", matches[0].Campaign.ID)
		assert.Equal(t, "cr1", matches[0].CreativeID)
		assert.InDelta(t, 1.0, matches[0].Confidence, 1e-9)
		platform.AssertNotCalled(t, "GetCampaignCreatives", mock.Anything, mock.Anything)
	})

	t.Run("falls back to live creatives", func(t *testing.T) {
		repos := newRepos(t)
		saveCampaigns(t, repos, linkerCampaigns()...)
		platform := &MockPlatform{}
		platform.On("GetCampaignCreatives", mock.Anything, "c1").
			Return([]analytics.Creative{{ID: "cr9", CampaignID: "c1", UGCPostReference: "urn:li:ugcPost:42"}}, nil)
		platform.On("GetCampaignCreatives", mock.Anything, "c2").
			Return([]analytics.Creative{{ID: "cr7", CampaignID: "c2", Reference: "urn:li:share:7100000000000000001"}}, nil)
		platform.On("GetCampaignCreatives", mock.Anything, "c3").
			Return(nil, errors.New("rate limited"))
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns, WithCreativeSource(platform))

		matches, err := l.SearchCampaignsByPostURL(ctx, "acc", sharePostURL)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "c2", matches[0].Campaign.ID)
		assert.Equal(t, "cr7", matches[0].CreativeID)
		platform.AssertExpectations(t)
	})

	t.Run("no creative source", func(t *testing.T) {
		repos := newRepos(t)
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns)

		matches, err := l.SearchCampaignsByPostURL(ctx, "acc", sharePostURL)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("malformed url", func(t *testing.T) {
		repos := newRepos(t)
		l := NewLinker(repos.Posts, repos.PostCampaigns, repos.Campaigns)

		_, err := l.SearchCampaignsByPostURL(ctx, "acc", "https://example.com/nothing")
		assert.ErrorIs(t, err, analytics.ErrInputMalformed)
	})
}
