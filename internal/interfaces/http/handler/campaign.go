package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/campaignlens/backend/internal/application/campaign"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/interfaces/http/dto"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PostCampaignLinker maintains the post to campaign junction.
type PostCampaignLinker interface {
	LinkPostToCampaigns(ctx context.Context, postID uuid.UUID, campaignIDs []string, assoc analytics.AssociationType) (int, error)
	Unlink(ctx context.Context, postID uuid.UUID, campaignID string) error
	GetPostCampaigns(ctx context.Context, postID uuid.UUID) ([]campaign.LinkedCampaign, error)
	GetCampaignPosts(ctx context.Context, campaignID string) ([]campaign.LinkedPost, error)
	SearchCampaignsByPostURL(ctx context.Context, accountID, postURL string) ([]campaign.CampaignMatch, error)
}

// CampaignSyncer creates post records from a campaign's creatives.
type CampaignSyncer interface {
	SyncCampaignPosts(ctx context.Context, c *analytics.Campaign) (*campaign.SyncResult, error)
}

// AudienceResolver resolves campaign targeting into labelled audiences.
type AudienceResolver interface {
	CampaignTargeting(ctx context.Context, campaignID string) (*campaign.Audience, error)
}

// DemographicsAggregator sums demographic reporting rows across campaigns.
type DemographicsAggregator interface {
	GetAggregatedDemographics(ctx context.Context, campaignIDs []string) (*campaign.Demographics, error)
}

// CampaignHandlerDeps are the collaborators of a CampaignHandler. Platform,
// Targeting and Demographics are optional.
type CampaignHandlerDeps struct {
	Linker       PostCampaignLinker
	Syncer       CampaignSyncer
	Campaigns    analytics.CampaignRepository
	Platform     CampaignLister
	Targeting    AudienceResolver
	Demographics DemographicsAggregator
	AccountID    string
}

// CampaignHandler exposes post to campaign linking and campaign post sync.
type CampaignHandler struct {
	BaseHandler
	deps CampaignHandlerDeps
}

// NewCampaignHandler creates a CampaignHandler
func NewCampaignHandler(deps CampaignHandlerDeps) *CampaignHandler {
	return &CampaignHandler{deps: deps}
}

// Sync handles POST /api/v1/campaigns/:id/sync.
func (h *CampaignHandler) Sync(c *gin.Context) {
	var uri dto.CampaignIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid campaign id")
		return
	}

	camp, err := h.findCampaign(c.Request.Context(), uri.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	result, err := h.deps.Syncer.SyncCampaignPosts(c.Request.Context(), camp)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// findCampaign prefers the stored campaign and falls back to the live
// account listing.
func (h *CampaignHandler) findCampaign(ctx context.Context, id string) (*analytics.Campaign, error) {
	camp, err := h.deps.Campaigns.FindByID(ctx, id)
	if err == nil || !errors.Is(err, shared.ErrNotFound) || h.deps.Platform == nil {
		return camp, err
	}
	live, lerr := h.deps.Platform.GetCampaigns(ctx, h.deps.AccountID)
	if lerr != nil {
		return nil, lerr
	}
	for i := range live {
		if live[i].ID == id {
			return &live[i], nil
		}
	}
	return nil, shared.ErrNotFound.WithMessage("campaign " + id + " not found")
}

// Posts handles GET /api/v1/campaigns/:id/posts.
func (h *CampaignHandler) Posts(c *gin.Context) {
	var uri dto.CampaignIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid campaign id")
		return
	}
	posts, err := h.deps.Linker.GetCampaignPosts(c.Request.Context(), uri.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, posts)
}

// Targeting handles GET /api/v1/campaigns/:id/targeting.
func (h *CampaignHandler) Targeting(c *gin.Context) {
	if h.deps.Targeting == nil {
		h.ServiceUnavailable(c, "Targeting resolution is not configured")
		return
	}
	var uri dto.CampaignIDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BadRequest(c, "Invalid campaign id")
		return
	}
	audience, err := h.deps.Targeting.CampaignTargeting(c.Request.Context(), uri.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, audience)
}

// Demographics handles GET /api/v1/campaigns/demographics?ids=1,2,3.
func (h *CampaignHandler) Demographics(c *gin.Context) {
	if h.deps.Demographics == nil {
		h.ServiceUnavailable(c, "Demographics are not configured")
		return
	}
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		h.BadRequest(c, "ids query parameter is required")
		return
	}
	demo, err := h.deps.Demographics.GetAggregatedDemographics(c.Request.Context(), ids)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, demo)
}

// Search handles GET /api/v1/campaigns/search?post_url=...
func (h *CampaignHandler) Search(c *gin.Context) {
	postURL := strings.TrimSpace(c.Query("post_url"))
	if postURL == "" {
		h.BadRequest(c, "post_url query parameter is required")
		return
	}
	matches, err := h.deps.Linker.SearchCampaignsByPostURL(c.Request.Context(), h.deps.AccountID, postURL)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, matches)
}

// LinkPost handles POST /api/v1/posts/:id/campaigns.
func (h *CampaignHandler) LinkPost(c *gin.Context) {
	postID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.LinkCampaignsRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	assoc := analytics.AssociationManual
	if req.AssociationType != "" {
		assoc = analytics.AssociationType(req.AssociationType)
	}

	n, err := h.deps.Linker.LinkPostToCampaigns(c.Request.Context(), postID, req.CampaignIDs, assoc)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.LinkCampaignsResponse{PostID: postID.String(), Linked: n})
}

// PostCampaigns handles GET /api/v1/posts/:id/campaigns.
func (h *CampaignHandler) PostCampaigns(c *gin.Context) {
	postID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	linked, err := h.deps.Linker.GetPostCampaigns(c.Request.Context(), postID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, linked)
}

// UnlinkPost handles DELETE /api/v1/posts/:id/campaigns/:campaignId.
func (h *CampaignHandler) UnlinkPost(c *gin.Context) {
	postID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.deps.Linker.Unlink(c.Request.Context(), postID, c.Param("campaignId")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"post_id": postID, "campaign_id": c.Param("campaignId"), "unlinked": true})
}
