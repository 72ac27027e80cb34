package handler

import (
	"context"
	"errors"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/interfaces/http/dto"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CampaignMatcher scores a post against candidate campaigns.
type CampaignMatcher interface {
	FindBestMatch(ctx context.Context, post *analytics.Post, campaigns []analytics.Campaign) (*analytics.MatchResult, error)
}

// CorrelationLinker persists a match as post to campaign links.
type CorrelationLinker interface {
	LinkCorrelation(ctx context.Context, post *analytics.Post, match *analytics.MatchResult) error
}

// CampaignLister lists the live campaigns of an ad account.
type CampaignLister interface {
	GetCampaigns(ctx context.Context, accountID string) ([]analytics.Campaign, error)
}

// CorrelationResponse is the answer of POST /api/v1/correlations
type CorrelationResponse struct {
	PostID  *uuid.UUID             `json:"post_id,omitempty"`
	PostURL string                 `json:"post_url"`
	Match   *analytics.MatchResult `json:"match"`
	Linked  bool                   `json:"linked"`
}

// CorrelationHandler correlates a single post on demand.
type CorrelationHandler struct {
	BaseHandler
	matcher   CampaignMatcher
	posts     analytics.PostRepository
	campaigns analytics.CampaignRepository
	platform  CampaignLister
	linker    CorrelationLinker
	accountID string
}

// NewCorrelationHandler creates a CorrelationHandler. platform and linker may
// be nil: candidates then come from the stored campaigns and linking is
// unavailable.
func NewCorrelationHandler(
	matcher CampaignMatcher,
	posts analytics.PostRepository,
	campaigns analytics.CampaignRepository,
	platform CampaignLister,
	linker CorrelationLinker,
	accountID string,
) *CorrelationHandler {
	return &CorrelationHandler{
		matcher:   matcher,
		posts:     posts,
		campaigns: campaigns,
		platform:  platform,
		linker:    linker,
		accountID: accountID,
	}
}

// Correlate handles POST /api/v1/correlations.
func (h *CorrelationHandler) Correlate(c *gin.Context) {
	var req dto.CorrelatePostRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	if req.Link && h.linker == nil {
		h.ServiceUnavailable(c, "Campaign linking is not configured")
		return
	}
	ctx := c.Request.Context()

	post, stored, err := h.loadPost(ctx, req.PostURL)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if req.Content != "" {
		post.Content = req.Content
	}
	if req.PostedAt != nil {
		post.PostedAt = req.PostedAt
	}

	candidates, err := h.candidates(ctx, req.CampaignIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	match, err := h.matcher.FindBestMatch(ctx, post, candidates)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := CorrelationResponse{PostURL: post.URL, Match: match}
	if req.Link && match.Matched() {
		if !stored {
			if err := h.posts.Upsert(ctx, post); err != nil {
				h.HandleError(c, err)
				return
			}
			stored = true
		}
		if err := h.linker.LinkCorrelation(ctx, post, match); err != nil {
			h.HandleError(c, err)
			return
		}
		resp.Linked = true
	}
	if stored {
		resp.PostID = &post.ID
	}
	h.Success(c, resp)
}

// loadPost returns the stored post for rawURL, or a fresh unsaved one.
func (h *CorrelationHandler) loadPost(ctx context.Context, rawURL string) (*analytics.Post, bool, error) {
	post := analytics.NewPost(rawURL)
	existing, err := h.posts.FindByURL(ctx, post.URL)
	switch {
	case err == nil:
		return existing, true, nil
	case errors.Is(err, shared.ErrNotFound):
		return post, false, nil
	default:
		return nil, false, err
	}
}

func (h *CorrelationHandler) candidates(ctx context.Context, ids []string) ([]analytics.Campaign, error) {
	if len(ids) > 0 {
		return h.campaigns.FindByIDs(ctx, ids)
	}
	if h.platform != nil {
		return h.platform.GetCampaigns(ctx, h.accountID)
	}
	return h.campaigns.ListByAccount(ctx, h.accountID)
}
