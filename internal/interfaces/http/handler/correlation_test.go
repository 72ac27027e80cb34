package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func matchedResult(campaignID string) *analytics.MatchResult {
	return &analytics.MatchResult{
		Campaigns: []analytics.CampaignScore{{
			CampaignID:    campaignID,
			CampaignName:  "Q3 Launch",
			Score:         0.82,
			WeightedScore: 0.82,
			Rank:          1,
		}},
		Confidence:          0.82,
		MatchQuality:        analytics.ConfidenceHigh,
		CandidatesEvaluated: 2,
	}
}

func TestCorrelationHandler_Correlate(t *testing.T) {
	campaigns := []analytics.Campaign{
		{ID: "501", Name: "Q3 Launch"},
		{ID: "502", Name: "Hiring"},
	}

	t.Run("stored post against explicit campaigns", func(t *testing.T) {
		posts := new(MockPostRepository)
		repo := new(MockCampaignRepository)
		matcher := new(MockCampaignMatcher)

		stored := analytics.NewPost(testPostURL)
		posts.On("FindByURL", mock.Anything, stored.URL).Return(stored, nil)
		repo.On("FindByIDs", mock.Anything, []string{"501", "502"}).Return(campaigns, nil)
		matcher.On("FindBestMatch", mock.Anything, stored, campaigns).Return(matchedResult("501"), nil)

		h := NewCorrelationHandler(matcher, posts, repo, nil, nil, "9000")
		w := serve(t, http.MethodPost, "/correlations", "/correlations", map[string]any{
			"post_url":     testPostURL,
			"campaign_ids": []string{"501", "502"},
		}, h.Correlate)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, stored.ID.String(), data["post_id"])
		assert.Equal(t, false, data["linked"])
		match := data["match"].(map[string]any)
		assert.InDelta(t, 0.82, match["confidence"], 1e-9)
		repo.AssertNotCalled(t, "ListByAccount", mock.Anything, mock.Anything)
	})

	t.Run("new post linked from live campaigns", func(t *testing.T) {
		posts := new(MockPostRepository)
		repo := new(MockCampaignRepository)
		matcher := new(MockCampaignMatcher)
		lister := new(MockCampaignLister)
		linker := new(MockCorrelationLinker)

		posted := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)
		posts.On("FindByURL", mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)
		posts.On("Upsert", mock.Anything, mock.AnythingOfType("*analytics.Post")).Return(nil)
		lister.On("GetCampaigns", mock.Anything, "9000").Return(campaigns, nil)
		matcher.On("FindBestMatch", mock.Anything, mock.MatchedBy(func(p *analytics.Post) bool {
			return p.Content == "Launching our new platform" && p.PostedAt != nil && p.PostedAt.Equal(posted)
		}), campaigns).Return(matchedResult("501"), nil)
		linker.On("LinkCorrelation", mock.Anything, mock.AnythingOfType("*analytics.Post"), mock.Anything).Return(nil)

		h := NewCorrelationHandler(matcher, posts, repo, lister, linker, "9000")
		w := serve(t, http.MethodPost, "/correlations", "/correlations", map[string]any{
			"post_url":  testPostURL,
			"content":   "Launching our new platform",
			"posted_at": posted.Format(time.RFC3339),
			"link":      true,
		}, h.Correlate)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, true, data["linked"])
		assert.NotEmpty(t, data["post_id"])
		posts.AssertExpectations(t)
		linker.AssertExpectations(t)
		repo.AssertNotCalled(t, "ListByAccount", mock.Anything, mock.Anything)
	})

	t.Run("no match leaves the post unlinked", func(t *testing.T) {
		posts := new(MockPostRepository)
		repo := new(MockCampaignRepository)
		matcher := new(MockCampaignMatcher)
		linker := new(MockCorrelationLinker)

		posts.On("FindByURL", mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)
		repo.On("ListByAccount", mock.Anything, "9000").Return(campaigns, nil)
		matcher.On("FindBestMatch", mock.Anything, mock.Anything, campaigns).Return(analytics.NoMatch(2), nil)

		h := NewCorrelationHandler(matcher, posts, repo, nil, linker, "9000")
		w := serve(t, http.MethodPost, "/correlations", "/correlations", map[string]any{
			"post_url": testPostURL,
			"link":     true,
		}, h.Correlate)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, false, data["linked"])
		assert.NotContains(t, data, "post_id")
		posts.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
		linker.AssertNotCalled(t, "LinkCorrelation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("link without linker", func(t *testing.T) {
		h := NewCorrelationHandler(new(MockCampaignMatcher), new(MockPostRepository), new(MockCampaignRepository), nil, nil, "9000")
		w := serve(t, http.MethodPost, "/correlations", "/correlations", map[string]any{
			"post_url": testPostURL,
			"link":     true,
		}, h.Correlate)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("repository failure", func(t *testing.T) {
		posts := new(MockPostRepository)
		posts.On("FindByURL", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		h := NewCorrelationHandler(new(MockCampaignMatcher), posts, new(MockCampaignRepository), nil, nil, "9000")
		w := serve(t, http.MethodPost, "/correlations", "/correlations", map[string]any{
			"post_url": testPostURL,
		}, h.Correlate)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})

	t.Run("non numeric campaign id", func(t *testing.T) {
		h := NewCorrelationHandler(new(MockCampaignMatcher), new(MockPostRepository), new(MockCampaignRepository), nil, nil, "9000")
		w := serve(t, http.MethodPost, "/correlations", "/correlations", map[string]any{
			"post_url":     testPostURL,
			"campaign_ids": []string{"abc"},
		}, h.Correlate)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
